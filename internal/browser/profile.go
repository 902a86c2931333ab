package browser

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/tebeka/selenium/chrome"
	"gopkg.in/yaml.v3"
)

// Profile is a named set of extra browser launch options. Profiles let
// operators keep per-site tweaks (user agent, window size, one-off flags)
// in a YAML file instead of the command line.
type Profile struct {
	Name       string   `yaml:"-"`
	UserAgent  string   `yaml:"user_agent"`
	WindowSize string   `yaml:"window_size"` // "width,height", e.g. "1920,1080"
	Args       []string `yaml:"args"`
}

// apply merges the profile into the Chrome launch options. Profile args
// come last so they can override the fixed set.
func (p *Profile) apply(opts *chrome.Capabilities) {
	if p.UserAgent != "" {
		opts.Args = append(opts.Args, "--user-agent="+p.UserAgent)
	}
	if p.WindowSize != "" {
		opts.Args = append(opts.Args, "--window-size="+p.WindowSize)
	}
	opts.Args = append(opts.Args, p.Args...)
}

// LoadProfiles reads browser profiles from a YAML file.
func LoadProfiles(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "browser: read profiles %s", path)
	}

	// The YAML has a top-level "profiles" key
	var wrapper struct {
		Profiles map[string]Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "browser: parse profiles")
	}

	for name, p := range wrapper.Profiles {
		p.Name = name
		wrapper.Profiles[name] = p
	}
	return wrapper.Profiles, nil
}

// LookupProfile loads the profiles file at path and returns the named
// profile.
func LookupProfile(path, name string) (*Profile, error) {
	profiles, err := LoadProfiles(path)
	if err != nil {
		return nil, err
	}
	p, ok := profiles[name]
	if !ok {
		return nil, eris.Errorf("browser: profile not found: %s", name)
	}
	return &p, nil
}
