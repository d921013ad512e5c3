package main

import (
	"github.com/cuemby/edgemind/internal/onboarding"
	"github.com/cuemby/edgemind/internal/rules"
)

// onboardingCatalog adapts onboarding's registered drafts into the
// device view the rule validator and generator need. Only devices
// that finished onboarding (StatusRegistered) are visible: a rule
// can't reference a device that's still mid-analysis.
type onboardingCatalog struct {
	onboard *onboarding.Manager
}

func (c *onboardingCatalog) registeredDrafts() []*onboarding.DraftDevice {
	var out []*onboarding.DraftDevice
	for _, d := range c.onboard.GetDrafts() {
		if d.Status == onboarding.StatusRegistered && d.Generated != nil {
			out = append(out, d)
		}
	}
	return out
}

func (c *onboardingCatalog) ValidationContext() (*rules.ValidationContext, error) {
	devices := make(map[string]*rules.DeviceInfo)
	for _, d := range c.registeredDrafts() {
		info := &rules.DeviceInfo{
			ID:     d.DeviceID,
			Name:   d.Generated.DisplayName,
			Online: true,
		}
		for _, m := range d.Generated.Metrics {
			info.Metrics = append(info.Metrics, rules.MetricInfo{
				Name:     m.Name,
				DataType: metricDataType(m.DataType),
			})
		}
		devices[d.DeviceID] = info
	}
	return &rules.ValidationContext{
		Devices:       devices,
		Extensions:    map[string]bool{},
		AlertChannels: map[string]bool{"default": true},
	}, nil
}

func (c *onboardingCatalog) GeneratorDevices() ([]rules.GeneratorDevice, error) {
	var out []rules.GeneratorDevice
	for _, d := range c.registeredDrafts() {
		gd := rules.GeneratorDevice{ID: d.DeviceID, Name: d.Generated.DisplayName}
		for _, m := range d.Generated.Metrics {
			gd.Metrics = append(gd.Metrics, m.Name)
		}
		out = append(out, gd)
	}
	return out, nil
}

func metricDataType(dt onboarding.DataType) rules.MetricDataType {
	switch dt {
	case onboarding.DataTypeBool:
		return rules.MetricBoolean
	case onboarding.DataTypeString:
		return rules.MetricString
	case onboarding.DataTypeEnum:
		return rules.MetricEnum
	default:
		return rules.MetricNumber
	}
}
