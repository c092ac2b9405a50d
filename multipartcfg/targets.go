package multipartcfg

import (
	"fmt"

	"github.com/mailchannels/mpfdstream/target"
)

// BuildTargets instantiates the target.Target for each configured
// TargetSpec, keyed by part name, ready to be passed to a Parser's
// Register. A fresh target.Dedup wraps any spec with Dedup set, sharing
// one target.SeenDigests across the whole set so a duplicate upload to
// two different part names is still caught.
func (c *Config) BuildTargets() (map[string]target.Target, error) {
	seen := target.NewSeenDigests()
	out := make(map[string]target.Target, len(c.Targets))
	for _, ts := range c.Targets {
		t, err := buildOne(ts)
		if err != nil {
			return nil, err
		}
		if ts.Dedup {
			t = &target.Dedup{Inner: t, Seen: seen}
		}
		out[ts.Name] = t
	}
	return out, nil
}

func buildOne(ts TargetSpec) (target.Target, error) {
	switch ts.Kind {
	case "value":
		return &target.Value{}, nil
	case "null":
		return &target.Null{}, nil
	case "sha256":
		return &target.Sha256{}, nil
	case "file":
		return &target.File{Path: ts.Path}, nil
	case "file_using_remote_name":
		return &target.FileUsingRemoteName{Directory: ts.Directory}, nil
	default:
		return nil, fmt.Errorf("multipartcfg: target %q: unknown kind %q", ts.Name, ts.Kind)
	}
}
