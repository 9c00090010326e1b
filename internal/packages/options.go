package packages

import (
	"strings"

	"packd/internal/library"
)

// DefaultOptions materializes the definition's launch options against the
// detected hardware. Hardware-dependent defaults are computed here, at
// read time, never cached.
func DefaultOptions(def Definition, gpu GPUInfo) []library.LaunchOption {
	out := make([]library.LaunchOption, 0, len(def.Options))
	lowVRAM := gpu.VRAMMB > 0 && gpu.VRAMMB < lowVRAMThresholdMB
	for _, od := range def.Options {
		opt := library.LaunchOption{
			Name:      od.Name,
			Type:      od.Type,
			Value:     od.Default,
			IsDefault: true,
		}
		if od.Type == library.OptionBool && od.EnableOnLowVRAM && lowVRAM {
			opt.Enabled = true
			opt.Value = "true"
		}
		out = append(out, opt)
	}
	return out
}

// BuildLaunchArgs assembles the final argument list: enabled options in the
// definition's declared order, then free-form extra arguments.
func BuildLaunchArgs(def Definition, saved []library.LaunchOption, extra string) []string {
	byName := make(map[string]library.LaunchOption, len(saved))
	for _, o := range saved {
		byName[o.Name] = o
	}
	var args []string
	for _, od := range def.Options {
		opt, ok := byName[od.Name]
		if !ok {
			continue
		}
		if !opt.Enabled {
			continue
		}
		switch opt.Type {
		case library.OptionBool:
			args = append(args, opt.Name)
		default:
			args = append(args, opt.Name, opt.Value)
		}
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		args = append(args, strings.Fields(extra)...)
	}
	return args
}
