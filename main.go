// Command onnb trains configurable feed-forward networks against a
// labeled dataset and benchmarks repeated random initializations of the
// same setup. Topology, hyperparameters, and component selections come
// from a network JSON file; data comes from a data JSON file or a
// CIFAR-10 binary batch.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"gorgonia.org/tensor"

	"onnb/neuralnet"
)

func main() {
	var (
		dataPath    = flag.String("data", "", "JSON file with training and validation sets")
		networkPath = flag.String("network", "", "JSON file with network structure and hyperparameters (required)")
		outputPath  = flag.String("output", "", "JSON file where training results are stored (default output/<timestamp>.json)")
		runs        = flag.Int("runs", 1, "number of concurrent training runs of the same network setup")
		shuffle     = flag.Bool("shuffle", false, "shuffle training data at the start of each cycle")
		shuffleOnce = flag.Bool("shuffle-once", false, "shuffle training data once, before the first cycle")
		epochs      = flag.Int("epochs", 0, "maximum number of training cycles (required)")
		batchSize   = flag.Int("batch-size", 0, "number of input vectors trained during each cycle (0 = all)")
		cifarPath   = flag.String("cifar", "", "CIFAR-10 binary batch file to use instead of -data")
		cifarHold   = flag.Int("cifar-holdout", 1000, "number of CIFAR images held out for validation")
		cifarNames  = flag.String("cifar-names", "", "text file with CIFAR-10 class names, one per line")
		dumpImage   = flag.Int("dump-image", -1, "write the n-th CIFAR image as a PNG and exit")
	)
	flag.Parse()

	if err := run(options{
		dataPath:    *dataPath,
		networkPath: *networkPath,
		outputPath:  *outputPath,
		runs:        *runs,
		shuffle:     shuffleMode(*shuffle, *shuffleOnce),
		epochs:      *epochs,
		batchSize:   *batchSize,
		cifarPath:   *cifarPath,
		cifarHold:   *cifarHold,
		cifarNames:  *cifarNames,
		dumpImage:   *dumpImage,
	}); err != nil {
		log.Fatal(err)
	}
}

type options struct {
	dataPath    string
	networkPath string
	outputPath  string
	runs        int
	shuffle     neuralnet.ShuffleMode
	epochs      int
	batchSize   int
	cifarPath   string
	cifarHold   int
	cifarNames  string
	dumpImage   int
}

func shuffleMode(each, once bool) neuralnet.ShuffleMode {
	switch {
	case each:
		return neuralnet.ShuffleEachEpoch
	case once:
		return neuralnet.ShuffleOnce
	}
	return neuralnet.ShuffleOff
}

func run(opts options) error {
	if opts.dumpImage >= 0 {
		if opts.cifarPath == "" {
			return errors.New("-dump-image requires -cifar")
		}
		images, labels, err := loadCIFAR10(opts.cifarPath)
		if err != nil {
			return err
		}
		return dumpCIFARImage(images, labels, opts)
	}

	train, val, err := loadDatasets(opts)
	if err != nil {
		return err
	}

	if opts.networkPath == "" {
		return errors.New("missing required -network flag")
	}
	networkJSON, err := os.ReadFile(opts.networkPath)
	if err != nil {
		return fmt.Errorf("network file %s missing or unreadable: %w", opts.networkPath, err)
	}
	setup, err := newRunSetup(networkJSON, train, val)
	if err != nil {
		return err
	}

	res, err := trainRuns(setup, runOptions{
		Runs:      opts.runs,
		Epochs:    opts.epochs,
		Shuffle:   opts.shuffle,
		BatchSize: opts.batchSize,
	})
	if err != nil {
		return err
	}
	return saveResults(res, opts.outputPath)
}

func loadDatasets(opts options) (train, val neuralnet.Dataset, err error) {
	switch {
	case opts.cifarPath != "":
		images, labels, err := loadCIFAR10(opts.cifarPath)
		if err != nil {
			return train, val, err
		}
		return cifarDatasets(images, labels, opts.cifarHold)
	case opts.dataPath != "":
		dataJSON, err := os.ReadFile(opts.dataPath)
		if err != nil {
			return train, val, fmt.Errorf("data file %s missing or unreadable: %w", opts.dataPath, err)
		}
		return parseData(dataJSON)
	}
	return train, val, errors.New("either -data or -cifar is required")
}

func dumpCIFARImage(images []tensor.Tensor, labels []int, opts options) error {
	if opts.dumpImage >= len(images) {
		return fmt.Errorf("image index %d out of range (%d images)", opts.dumpImage, len(images))
	}
	var names []string
	if opts.cifarNames != "" {
		var err error
		if names, err = readCIFARNames(opts.cifarNames); err != nil {
			return err
		}
	}
	path, err := saveCIFARImage(images[opts.dumpImage], names, labels[opts.dumpImage], opts.dumpImage)
	if err != nil {
		return err
	}
	log.Printf("image saved as %s", path)
	return nil
}
