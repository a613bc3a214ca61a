package telemetry

import (
	"strconv"
	"strings"
)

const (
	// DefaultTopicMapping is used when no mapping is configured.
	DefaultTopicMapping = "org/location/building/area/floor/room/group/device/measurement/field"

	// SkipSlot discards the topic segment at its position.
	SkipSlot = "-"

	slotMeasurement = "measurement"
	slotField       = "field"
	overflowPrefix  = "tag"
)

// TagColumns is the fixed tag vocabulary, in statement order.
var TagColumns = []string{"org", "name", "location", "building", "area", "floor", "room", "group", "device"}

var recognizedSlots = map[string]struct{}{
	"org": {}, "name": {}, "location": {}, "building": {}, "area": {},
	"floor": {}, "room": {}, "group": {}, "device": {},
	slotMeasurement: {}, slotField: {},
}

// TopicMapping is an ordered list of slot names matched against topic segments.
type TopicMapping []string

// ParseTopicMapping splits a slash-delimited template. A blank template yields the default mapping.
func ParseTopicMapping(value string) TopicMapping {
	if strings.TrimSpace(value) == "" {
		value = DefaultTopicMapping
	}
	return TopicMapping(strings.Split(value, "/"))
}

func (m TopicMapping) String() string {
	return strings.Join(m, "/")
}

// SchemaVariant selects how topics turn into tags.
type SchemaVariant string

const (
	SchemaTemplate   SchemaVariant = "template"
	SchemaIndustrial SchemaVariant = "industrial"
	SchemaHome       SchemaVariant = "home"
)

// ParseSchemaVariant validates a schema selector. Empty means template.
func ParseSchemaVariant(value string) (SchemaVariant, error) {
	switch SchemaVariant(strings.ToLower(strings.TrimSpace(value))) {
	case "", SchemaTemplate:
		return SchemaTemplate, nil
	case SchemaIndustrial:
		return SchemaIndustrial, nil
	case SchemaHome:
		return SchemaHome, nil
	default:
		return "", ErrInvalidSchema
	}
}

// IsFixed reports whether the variant uses positional tags instead of a template.
func (s SchemaVariant) IsFixed() bool {
	return s == SchemaIndustrial || s == SchemaHome
}

func (s SchemaVariant) positionalTags() []string {
	if s == SchemaIndustrial {
		return []string{"org", "location", "building", "area", "device"}
	}
	return []string{"name", "location", "building", "floor", "device"}
}

// DefaultIntegerColumn is the integer column used when none is configured.
func (s SchemaVariant) DefaultIntegerColumn() IntegerColumn {
	if s == SchemaHome {
		return IntegerInt
	}
	return IntegerBigint
}

// ResolvedIdentity is what a topic says about a message.
type ResolvedIdentity struct {
	Measurement  string
	Field        string
	Tags         map[string]string
	OverflowTags map[string]string
}

// ResolveOptions parameterizes Resolve.
type ResolveOptions struct {
	Mapping     TopicMapping
	Schema      SchemaVariant
	IgnoreTopic bool

	// Measurement and Field apply when the topic does not supply them.
	Measurement string
	Field       string

	// RequireField is set for naked payloads.
	RequireField bool
}

// Resolve derives measurement, field and tags from topic. An empty topic is absent.
func Resolve(topic string, opts ResolveOptions) (ResolvedIdentity, error) {
	identity := ResolvedIdentity{
		Tags:         map[string]string{},
		OverflowTags: map[string]string{},
	}

	if !opts.IgnoreTopic {
		if topic == "" {
			return identity, ErrMissingTopic
		}
		if opts.Schema.IsFixed() {
			resolvePositional(&identity, topic, opts.Schema)
		} else {
			mapping := opts.Mapping
			if len(mapping) == 0 {
				mapping = ParseTopicMapping("")
			}
			resolveTemplate(&identity, topic, mapping)
		}
	}

	if identity.Measurement == "" {
		identity.Measurement = opts.Measurement
	}
	if identity.Field == "" {
		identity.Field = opts.Field
	}
	if identity.Measurement == "" {
		return identity, ErrMissingMeasurement
	}
	if opts.RequireField && identity.Field == "" {
		return identity, ErrMissingField
	}
	return identity, nil
}

func resolveTemplate(identity *ResolvedIdentity, topic string, mapping TopicMapping) {
	counter := 1
	for i, segment := range strings.Split(topic, "/") {
		if i >= len(mapping) {
			identity.OverflowTags[overflowPrefix+strconv.Itoa(counter)] = segment
			counter++
			continue
		}
		slot := mapping[i]
		if slot == SkipSlot {
			continue
		}
		if _, ok := recognizedSlots[slot]; !ok {
			identity.OverflowTags[slot] = segment
			continue
		}
		switch slot {
		case slotMeasurement:
			identity.Measurement = segment
		case slotField:
			identity.Field = segment
		default:
			identity.Tags[slot] = segment
		}
	}
}

func resolvePositional(identity *ResolvedIdentity, topic string, schema SchemaVariant) {
	segments := strings.Split(topic, "/")
	for i, name := range schema.positionalTags() {
		if i >= len(segments) {
			break
		}
		if segments[i] == "" {
			continue
		}
		identity.Tags[name] = segments[i]
	}
}
