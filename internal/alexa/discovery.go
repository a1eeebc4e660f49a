package alexa

import "slices"

// Appliance is a device that can be announced during discovery.
type Appliance interface {
	// Detail returns a declared detail attribute such as "manufacturer".
	Detail(name string) (any, bool)
	Actions() []string
}

// RegisteredAppliance is one registry entry. Details override the
// appliance's own attributes for this registration only.
type RegisteredAppliance struct {
	ID        string
	Appliance Appliance
	Details   map[string]any
}

type ApplianceRegistry interface {
	Appliances() []RegisteredAppliance
	DefaultDetail(name string) (any, bool)
}

type DiscoverRequest struct {
	*BaseRequest
}

// detailSource is one level of the detail lookup chain.
type detailSource func(name string) (any, bool)

func mapSource(m map[string]any) detailSource {
	return func(name string) (any, bool) {
		v, ok := m[name]
		return v, ok
	}
}

// resolveDetail returns the first value found in sources, in order.
func resolveDetail(name string, fallback any, sources []detailSource) any {
	for _, source := range sources {
		if v, ok := source(name); ok {
			return v
		}
	}
	return fallback
}

func (r *DiscoverRequest) Response(registry ApplianceRegistry) Envelope {
	discovered := make([]map[string]any, 0)

	for _, entry := range registry.Appliances() {
		sources := []detailSource{mapSource(entry.Details)}
		var actions []string
		if entry.Appliance != nil {
			sources = append(sources, entry.Appliance.Detail)
			actions = slices.Clone(entry.Appliance.Actions())
		}
		sources = append(sources, registry.DefaultDetail)

		if actions == nil {
			actions = []string{}
		}
		slices.Sort(actions)

		discovered = append(discovered, map[string]any{
			"applianceId":                entry.ID,
			"manufacturerName":           resolveDetail("manufacturer", "", sources),
			"modelName":                  resolveDetail("model", "", sources),
			"version":                    resolveDetail("version", "", sources),
			"friendlyName":               resolveDetail("name", "", sources),
			"friendlyDescription":        resolveDetail("description", "", sources),
			"isReachable":                resolveDetail("reachable", true, sources),
			"additionalApplianceDetails": resolveDetail("additional_details", map[string]any{}, sources),
			"actions":                    actions,
		})
	}

	return r.RawResponse(map[string]any{"discoveredAppliances": discovered}, nil)
}
