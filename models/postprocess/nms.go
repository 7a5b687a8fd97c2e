// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import "github.com/nvr-ai/go-ml-eval/images"

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float64 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap threshold for suppression.
	ClassAware   bool    `json:"class_aware" yaml:"class_aware"`     // If true, suppress only within same class.
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Slice of detections sorted by descending confidence.
//   - config: NMS configuration. A nil config disables suppression.
//
// Returns:
//   - Filtered slice of detections. If no detections are provided, returns nil.
func ApplyGreedyNMS(detections []Result, config *NMSConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}
	if config == nil {
		return detections
	}

	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Class != detections[j].Class {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, detections[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
