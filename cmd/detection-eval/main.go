// Package main is the detection-eval command: it runs a pre-trained detector
// over a labeled image set and either draws its detections or scores them
// with mAP@0.5.
package main

import (
	"log"
	"os"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
