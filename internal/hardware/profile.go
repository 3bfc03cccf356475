package hardware

import "github.com/kalambet/promptfabric/internal/provider"

// Profile describes the machine the server is running on. Produced by
// Detect; Recommend consumes it without touching the host again.
type Profile struct {
	OS              string  `json:"os"`
	CPUCores        int     `json:"cpu_cores"`
	TotalRAMGB      float64 `json:"total_ram_gb"`
	HasNVIDIAGPU    bool    `json:"has_nvidia_gpu"`
	HasAppleSilicon bool    `json:"has_apple_silicon"`
	HasAMDGPU       bool    `json:"has_amd_gpu"`
}

// Recommendation is the provider and per-role model selection for a Profile.
type Recommendation struct {
	Provider  provider.Kind `json:"provider"`
	Generator string        `json:"generator_model"`
	Refiner   string        `json:"refiner_model"`
	Validator string        `json:"validator_model"`
}

// Recommend maps a Profile to a provider and model set. Pure: same Profile,
// same Recommendation. The tiers favor LM Studio on NVIDIA machines and
// Ollama everywhere else, scaling model size with available RAM.
func Recommend(p Profile) Recommendation {
	switch {
	case p.HasNVIDIAGPU:
		return recommendNVIDIA(p.TotalRAMGB)
	case p.HasAppleSilicon, p.HasAMDGPU:
		return recommendAccelerated(p.TotalRAMGB)
	default:
		return recommendCPU(p.TotalRAMGB)
	}
}

func recommendNVIDIA(ramGB float64) Recommendation {
	rec := Recommendation{Provider: provider.KindLMStudio}
	switch {
	case ramGB >= 32:
		rec.Generator = "deepseek-coder-r1-14b"
		rec.Refiner = "gemma-3-4b-it"
		rec.Validator = "phi-4-mini"
	case ramGB >= 24:
		rec.Generator = "deepseek-coder-r1-7b"
		rec.Refiner = "gemma-2b-it"
		rec.Validator = "phi-3-mini"
	case ramGB >= 16:
		rec.Generator = "qwen2.5-coder-7b"
		rec.Refiner = "gemma-2b-it"
		rec.Validator = "phi-3-mini"
	default:
		rec.Provider = provider.KindOllama
		rec.Generator = "llama3.1:8b"
		rec.Refiner = "gemma:2b"
		rec.Validator = "phi3:3.8b"
	}
	return rec
}

func recommendAccelerated(ramGB float64) Recommendation {
	rec := Recommendation{Provider: provider.KindOllama}
	if ramGB >= 16 {
		rec.Generator = "llama3.2:3b"
		rec.Refiner = "gemma:2b"
		rec.Validator = "phi3:3.8b"
	} else {
		rec.Generator = "llama3.2:1b"
		rec.Refiner = "gemma:1b"
		rec.Validator = "phi3:3.8b"
	}
	return rec
}

func recommendCPU(ramGB float64) Recommendation {
	rec := Recommendation{Provider: provider.KindOllama}
	switch {
	case ramGB >= 16:
		rec.Generator = "llama3.2:1b"
		rec.Refiner = "gemma:1b"
		rec.Validator = "phi3:3.8b"
	case ramGB >= 8:
		rec.Generator = "llama3.2:1b"
		rec.Refiner = "tinyllama"
		rec.Validator = "phi3:3.8b"
	default:
		rec.Generator = "llama3.2:1b"
		rec.Refiner = "tinyllama"
		rec.Validator = "tinyllama"
	}
	return rec
}
