package download

import (
	"testing"
	"time"

	"github.com/biomaj/biomaj-download/internal/retry"
)

func TestRetryPolicyFallsBackToDefaultWithNoOptions(t *testing.T) {
	var o Options
	def := retry.Policy{Stop: retry.StopAfterAttempt(5), Wait: retry.WaitNone()}

	got := o.RetryPolicy(def)

	if got.Stop != def.Stop || got.Wait != def.Wait {
		t.Errorf("RetryPolicy() = %+v, want default %+v", got, def)
	}
}

func TestRetryPolicyParsesStopConditionOption(t *testing.T) {
	o := Options{Options: map[string]string{"stop_condition": "stop_after_attempt(2)"}}
	def := retry.Policy{Stop: retry.StopAfterAttempt(5), Wait: retry.WaitNone()}

	pol := o.RetryPolicy(def)

	attempts := make([]retry.Attempt, 2)
	if !pol.Stop.ShouldStop(attempts, 0) {
		t.Error("parsed stop_condition should stop after 2 attempts, not fall back to the default of 5")
	}
}

func TestRetryPolicyFallsBackOnUnparseableOption(t *testing.T) {
	o := Options{Options: map[string]string{"stop_condition": "not a valid clause"}}
	def := retry.Policy{Stop: retry.StopAfterAttempt(5), Wait: retry.WaitNone()}

	got := o.RetryPolicy(def)
	if got.Stop != def.Stop || got.Wait != def.Wait {
		t.Errorf("RetryPolicy() with invalid option = %+v, want default %+v", got, def)
	}
}

func TestRetryPolicyKeepsDefaultWaitWhenOnlyStopSet(t *testing.T) {
	o := Options{Options: map[string]string{"stop_condition": "stop_after_attempt(3)"}}
	def := retry.Policy{Stop: retry.StopAfterAttempt(5), Wait: retry.WaitFixed(2 * time.Second)}

	pol := o.RetryPolicy(def)
	if pol.Wait != def.Wait {
		t.Error("wait policy should fall back to the default when wait_policy is unset")
	}
}
