package session

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes Options, accepting auto_stop either as a Go duration
// string ("10m", "90s") or as raw nanoseconds.
func (o *Options) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		LocalName   string    `yaml:"local_name"`
		AutoStop    yaml.Node `yaml:"auto_stop"`
		EventBuffer int       `yaml:"event_buffer"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	o.LocalName = raw.LocalName
	o.EventBuffer = raw.EventBuffer

	if raw.AutoStop.IsZero() {
		o.AutoStop = 0
		return nil
	}

	var ns int64
	if err := raw.AutoStop.Decode(&ns); err == nil {
		o.AutoStop = time.Duration(ns)
		return nil
	}

	var s string
	if err := raw.AutoStop.Decode(&s); err != nil {
		return fmt.Errorf("invalid auto_stop value: %w", err)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid auto_stop duration %q: %w", s, err)
	}
	o.AutoStop = d
	return nil
}
