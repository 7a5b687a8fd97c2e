package detector

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Provider represents an ONNX Runtime execution provider.
type Provider string

const (
	// ProviderCPU runs on the default CPU provider.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA uses NVIDIA CUDA for GPU acceleration.
	ProviderCUDA Provider = "cuda"
	// ProviderCoreML uses Apple CoreML on macOS.
	ProviderCoreML Provider = "coreml"
)

// ErrUnknownProvider is returned for an unsupported execution provider.
var ErrUnknownProvider = errors.New("unknown execution provider")

// Valid reports whether p names a supported provider. The empty provider is
// valid and means ProviderCPU.
func (p Provider) Valid() bool {
	switch p {
	case "", ProviderCPU, ProviderCUDA, ProviderCoreML:
		return true
	default:
		return false
	}
}

// cudaOptions returns the CUDA provider settings for cfg.
func cudaOptions(cfg Config) map[string]string {
	return map[string]string{
		"device_id": strconv.Itoa(cfg.DeviceID),
	}
}

// sessionOptions builds the session options for cfg. The caller destroys
// them once the session is created.
func sessionOptions(cfg Config) (*ort.SessionOptions, error) {
	if !cfg.Provider.Valid() {
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", cfg.Provider)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to set intra-op threads")
		}
	}

	switch cfg.Provider {
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to create cuda provider options")
		}
		defer cuda.Destroy()

		if err := cuda.Update(cudaOptions(cfg)); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to set cuda provider options")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to enable cuda provider")
		}
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to enable coreml provider")
		}
	}
	return options, nil
}
