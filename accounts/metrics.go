package accounts

import "time"

// Metrics receives request and side-effect observations. ops.Metrics implements it.
type Metrics interface {
	ObserveRequest(operation, outcome string, d time.Duration)
	ResolverLookup(outcome string)
	WhitelistCall(action, outcome string)
	WhitelistDivergence(operation string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRequest(string, string, time.Duration) {}
func (nopMetrics) ResolverLookup(string)                        {}
func (nopMetrics) WhitelistCall(string, string)                 {}
func (nopMetrics) WhitelistDivergence(string)                   {}
