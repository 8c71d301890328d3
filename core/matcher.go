package core

import (
	"slices"
	"strings"
)

// Match returns the subscriptions that should receive the event. Events outside
// the partner allow-list never match. The subscription list is loaded by the
// caller for the current invocation.
func Match(event Event, subscriptions []Subscription) []Subscription {
	if !event.Type.PartnerVisible() {
		return nil
	}
	matched := make([]Subscription, 0, len(subscriptions))
	for _, sub := range subscriptions {
		if SubscriptionMatches(event, sub) {
			matched = append(matched, sub)
		}
	}
	return matched
}

func SubscriptionMatches(event Event, sub Subscription) bool {
	if !event.Type.PartnerVisible() || !sub.Deliverable() {
		return false
	}
	// Opt-in only: an empty type set receives nothing.
	if !slices.Contains(sub.EventTypes, event.Type) {
		return false
	}
	if tenant := strings.TrimSpace(sub.TenantID); tenant != "" && tenant != strings.TrimSpace(event.TenantID) {
		return false
	}
	return matchesTerritory(event.Country, sub.Countries)
}

func matchesTerritory(country string, countries []string) bool {
	if len(countries) == 0 {
		return true
	}
	country = strings.TrimSpace(country)
	if country == "" {
		return true
	}
	for _, candidate := range countries {
		if strings.EqualFold(strings.TrimSpace(candidate), country) {
			return true
		}
	}
	return false
}
