// Package packages holds the static catalog of supported package types and
// the installer that provisions them. Each catalog entry is a capability-set
// record, not a subclass: variant behavior is selected by enums (accelerator
// recipe, shared-folder mode) rather than per-type code.
package packages

import (
	"sort"

	"packd/internal/library"
)

// SharedFolderMode selects how a package is pointed at the central model
// directory.
type SharedFolderMode string

const (
	SharedSymlink SharedFolderMode = "symlink"
	SharedConfig  SharedFolderMode = "config"
	SharedNone    SharedFolderMode = "none"
)

// Capabilities is the closed capability set a definition declares.
type Capabilities struct {
	HasExtensionManager   bool
	SupportsSharedFolders bool
}

// OptionDefinition describes one configurable launch argument. Defaults may
// depend on detected hardware; they are computed at metadata-read time, not
// cached across hardware changes.
type OptionDefinition struct {
	Name            string
	Type            library.OptionType
	Default         string
	EnableOnLowVRAM bool // boolean flags only: enabled by default below the VRAM threshold
}

// Definition is the static descriptor for one supported package type.
type Definition struct {
	Name          string
	DisplayName   string
	Author        string
	License       string
	RepoURL       string
	DefaultBranch string

	// LaunchScript is the entry script relative to the install dir. When
	// empty, LaunchConsoleScript names a console-script shim resolved via
	// the venv's entry-point metadata.
	LaunchScript        string
	LaunchConsoleScript string

	// ReadyPattern is a regex matched against console output; its first
	// capture group is the ready URL.
	ReadyPattern string

	Capabilities  Capabilities
	Accelerators  []Accelerator
	SharedModes   []SharedFolderMode
	DefaultShared SharedFolderMode
	// SharedLayout maps install-relative directories to models-dir subdirs
	// for the symlink strategy.
	SharedLayout map[string]string
	// ConfigFile is the package's own config file rewritten by the config
	// strategy.
	ConfigFile string

	Options          []OptionDefinition
	RequirementsFile string
	// TorchExclude filters requirements entries the accelerator step
	// already satisfied.
	TorchExclude string
	// FirstRunArgs is an optional package-specific configuration command
	// run once after install, inside the venv.
	FirstRunArgs []string
}

// catalog is the closed set of supported package types.
var catalog = map[string]Definition{
	"sd-webui": {
		Name:          "sd-webui",
		DisplayName:   "Stable Diffusion WebUI",
		Author:        "AUTOMATIC1111",
		License:       "AGPL-3.0",
		RepoURL:       "https://github.com/AUTOMATIC1111/stable-diffusion-webui.git",
		DefaultBranch: "master",
		LaunchScript:  "launch.py",
		ReadyPattern:  `Running on local URL:\s+(https?://\S+)`,
		Capabilities:  Capabilities{HasExtensionManager: true, SupportsSharedFolders: true},
		Accelerators:  []Accelerator{AccelCPU, AccelCUDA, AccelROCm, AccelDirectML, AccelMetal},
		SharedModes:   []SharedFolderMode{SharedSymlink, SharedConfig, SharedNone},
		DefaultShared: SharedSymlink,
		SharedLayout: map[string]string{
			"models/Stable-diffusion": "StableDiffusion",
			"models/Lora":             "Lora",
			"models/VAE":              "VAE",
			"embeddings":              "TextualInversion",
		},
		ConfigFile: "config.json",
		Options: []OptionDefinition{
			{Name: "--medvram", Type: library.OptionBool, EnableOnLowVRAM: true},
			{Name: "--xformers", Type: library.OptionBool},
			{Name: "--port", Type: library.OptionString, Default: "7860"},
		},
		RequirementsFile: "requirements_versions.txt",
		TorchExclude:     `^(torch|torchvision|xformers)$`,
		FirstRunArgs:     []string{"launch.py", "--skip-torch-cuda-test", "--exit"},
	},
	"comfyui": {
		Name:          "comfyui",
		DisplayName:   "ComfyUI",
		Author:        "comfyanonymous",
		License:       "GPL-3.0",
		RepoURL:       "https://github.com/comfyanonymous/ComfyUI.git",
		DefaultBranch: "master",
		LaunchScript:  "main.py",
		ReadyPattern:  `To see the GUI go to:\s+(https?://\S+)`,
		Capabilities:  Capabilities{HasExtensionManager: true, SupportsSharedFolders: true},
		Accelerators:  []Accelerator{AccelCPU, AccelCUDA, AccelROCm, AccelDirectML, AccelMetal},
		SharedModes:   []SharedFolderMode{SharedConfig, SharedNone},
		DefaultShared: SharedConfig,
		ConfigFile:    "extra_model_paths.yaml",
		Options: []OptionDefinition{
			{Name: "--lowvram", Type: library.OptionBool, EnableOnLowVRAM: true},
			{Name: "--listen", Type: library.OptionString, Default: "127.0.0.1"},
			{Name: "--port", Type: library.OptionString, Default: "8188"},
		},
		RequirementsFile: "requirements.txt",
		TorchExclude:     `^(torch|torchvision|torchaudio)$`,
	},
	"fooocus": {
		Name:          "fooocus",
		DisplayName:   "Fooocus",
		Author:        "lllyasviel",
		License:       "GPL-3.0",
		RepoURL:       "https://github.com/lllyasviel/Fooocus.git",
		DefaultBranch: "main",
		LaunchScript:  "entry_with_update.py",
		ReadyPattern:  `App started successful.*?(https?://\S+)`,
		Capabilities:  Capabilities{SupportsSharedFolders: true},
		Accelerators:  []Accelerator{AccelCPU, AccelCUDA, AccelROCm},
		SharedModes:   []SharedFolderMode{SharedConfig, SharedNone},
		DefaultShared: SharedConfig,
		ConfigFile:    "config.txt",
		Options: []OptionDefinition{
			{Name: "--always-low-vram", Type: library.OptionBool, EnableOnLowVRAM: true},
			{Name: "--port", Type: library.OptionString, Default: "7865"},
		},
		RequirementsFile: "requirements_versions.txt",
		TorchExclude:     `^(torch|torchvision)$`,
	},
}

// Get returns the definition for name.
func Get(name string) (Definition, error) {
	d, ok := catalog[name]
	if !ok {
		return Definition{}, ErrUnknownPackage(name)
	}
	return d, nil
}

// All returns every definition, sorted by name.
func All() []Definition {
	out := make([]Definition, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
