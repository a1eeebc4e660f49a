package alexa

const (
	ControlNamespace   = "Alexa.ConnectedHome.Control"
	DiscoveryNamespace = "Alexa.ConnectedHome.Discovery"
	QueryNamespace     = "Alexa.ConnectedHome.Query"
	SystemNamespace    = "Alexa.ConnectedHome.System"
)

// Family groups directives that share a payload schema.
type Family string

const (
	FamilyGeneric            Family = "generic"
	FamilyDiscovery          Family = "discovery"
	FamilyPercentage         Family = "percentage"
	FamilyChangeTemperature  Family = "change_temperature"
	FamilyGetTemperature     Family = "get_temperature"
	FamilyTemperatureReading Family = "temperature_reading"
	FamilyLockState          Family = "lock_state"
	FamilyHealthCheck        Family = "health_check"
)

var directiveFamilies = map[string]Family{
	"DiscoverAppliancesRequest": FamilyDiscovery,

	"IncrementPercentageRequest": FamilyPercentage,
	"DecrementPercentageRequest": FamilyPercentage,
	"SetPercentageRequest":       FamilyPercentage,

	"IncrementTargetTemperatureRequest": FamilyChangeTemperature,
	"DecrementTargetTemperatureRequest": FamilyChangeTemperature,
	"SetTargetTemperatureRequest":       FamilyChangeTemperature,

	"GetTargetTemperatureRequest":  FamilyGetTemperature,
	"GetTemperatureReadingRequest": FamilyTemperatureReading,

	"SetLockStateRequest": FamilyLockState,
	"GetLockStateRequest": FamilyLockState,

	"HealthCheckRequest": FamilyHealthCheck,
}

// FamilyOf returns the family for a directive name. Unknown names are generic.
func FamilyOf(name string) Family {
	if family, ok := directiveFamilies[name]; ok {
		return family
	}
	return FamilyGeneric
}

// NewRequest classifies env by its header name and wraps it in the matching
// request type. ctx is carried along untouched.
func NewRequest(env Envelope, ctx any) Request {
	family := FamilyOf(env.Header.Name())
	base := newBaseRequest(env, ctx, family)

	switch family {
	case FamilyDiscovery:
		return &DiscoverRequest{base}
	case FamilyPercentage:
		return &PercentageRequest{base}
	case FamilyChangeTemperature:
		return &ChangeTemperatureRequest{TemperatureRequest{base}}
	case FamilyGetTemperature:
		return &GetTemperatureRequest{TemperatureRequest{base}}
	case FamilyTemperatureReading:
		return &TemperatureReadingRequest{TemperatureRequest{base}}
	case FamilyLockState:
		return &LockStateRequest{base}
	case FamilyHealthCheck:
		return &HealthCheckRequest{base}
	default:
		return base
	}
}

// ParseRequest decodes and classifies a raw directive.
func ParseRequest(data []byte, ctx any) (Request, error) {
	env, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewRequest(env, ctx), nil
}
