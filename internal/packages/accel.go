package packages

import (
	"packd/internal/venv"
)

// Accelerator is the hardware backend a package's tensor runtime is
// installed against.
type Accelerator string

const (
	AccelCPU      Accelerator = "cpu"
	AccelCUDA     Accelerator = "cuda"
	AccelROCm     Accelerator = "rocm"
	AccelDirectML Accelerator = "directml"
	AccelMetal    Accelerator = "metal"
)

// torchRecipe maps an accelerator to its fixed torch version and index URL.
// These pairs are pinned together: bumping one without the other breaks the
// wheel resolution. extraIndex keeps PyPI as the primary index for recipes
// whose package set is only partially hosted on the torch index.
type torchRecipe struct {
	packages   []string // name/version pairs flattened: name, version, ...
	indexURL   string
	extraIndex bool
}

var torchRecipes = map[Accelerator]torchRecipe{
	AccelCPU: {
		packages: []string{"torch", "2.1.2", "torchvision", "0.16.2"},
		indexURL: "https://download.pytorch.org/whl/cpu",
	},
	AccelCUDA: {
		// xformers resolves from PyPI while the torch wheels come from the
		// cu121 index
		packages:   []string{"torch", "2.1.2", "torchvision", "0.16.2", "xformers", "0.0.23.post1"},
		indexURL:   "https://download.pytorch.org/whl/cu121",
		extraIndex: true,
	},
	AccelROCm: {
		packages: []string{"torch", "2.1.2", "torchvision", "0.16.2"},
		indexURL: "https://download.pytorch.org/whl/rocm5.6",
	},
	AccelDirectML: {
		packages: []string{"torch-directml", "0.2.0.dev230426"},
		indexURL: "",
	},
	AccelMetal: {
		packages: []string{"torch", "2.1.2", "torchvision", "0.16.2"},
		indexURL: "",
	},
}

// TorchInstallArgs builds the pip arguments for the accelerator-specific
// tensor backend install.
func TorchInstallArgs(accel Accelerator) (venv.PipArgs, error) {
	recipe, ok := torchRecipes[accel]
	if !ok {
		return venv.PipArgs{}, ErrUnknownAccelerator(string(accel))
	}
	args := venv.PipArgs{}
	for i := 0; i+1 < len(recipe.packages); i += 2 {
		args = args.WithPackage(recipe.packages[i], recipe.packages[i+1])
	}
	if recipe.indexURL != "" {
		if recipe.extraIndex {
			args = args.WithExtraIndex(recipe.indexURL)
		} else {
			args = args.WithIndex(recipe.indexURL)
		}
	}
	return args, nil
}

// Supported reports whether def supports accel.
func (d Definition) Supported(accel Accelerator) bool {
	for _, a := range d.Accelerators {
		if a == accel {
			return true
		}
	}
	return false
}
