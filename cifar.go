package main

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"onnb/neuralnet"
)

const (
	cifarImageSize = 32 * 32 * 3
	cifarRow       = 1 + cifarImageSize
)

// loadCIFAR10 reads a CIFAR-10 binary batch file into one tensor per
// image (shape 3x32x32, channel values scaled to [0, 1]) plus the class
// labels. A truncated trailing record is an error.
func loadCIFAR10(path string) ([]tensor.Tensor, []int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	images := make([]tensor.Tensor, 0)
	labels := make([]int, 0)
	row := make([]byte, cifarRow)
	for {
		_, err := io.ReadFull(reader, row)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		labels = append(labels, int(row[0]))

		norm := make([]float32, cifarImageSize)
		for i, b := range row[1:] {
			norm[i] = float32(b) / 255.0
		}
		t := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(3, 32, 32), tensor.WithBacking(norm))
		images = append(images, t)
	}
	if len(images) == 0 {
		return nil, nil, fmt.Errorf("no records in %s", path)
	}
	return images, labels, nil
}

// cifarDatasets flattens CIFAR images into the engine's column-major
// convention (3072 features x examples, labels as a single row),
// holding out the tail of the batch for validation.
func cifarDatasets(images []tensor.Tensor, labels []int, holdout int) (train, val neuralnet.Dataset, err error) {
	if holdout <= 0 || holdout >= len(images) {
		return train, val, fmt.Errorf("holdout of %d leaves no training or validation data", holdout)
	}

	inputs := mat.NewDense(cifarImageSize, len(images), nil)
	for j, img := range images {
		data := img.Data().([]float32)
		for i, v := range data {
			inputs.Set(i, j, float64(v))
		}
	}
	outputs := mat.NewDense(1, len(labels), nil)
	for j, label := range labels {
		outputs.Set(0, j, float64(label))
	}

	split := len(images) - holdout
	trainIn := mat.DenseCopyOf(inputs.Slice(0, cifarImageSize, 0, split))
	trainOut := mat.DenseCopyOf(outputs.Slice(0, 1, 0, split))
	valIn := mat.DenseCopyOf(inputs.Slice(0, cifarImageSize, split, len(images)))
	valOut := mat.DenseCopyOf(outputs.Slice(0, 1, split, len(images)))

	if train, err = neuralnet.NewDataset(trainIn, trainOut); err != nil {
		return train, val, err
	}
	val, err = neuralnet.NewDataset(valIn, valOut)
	return train, val, err
}

// readCIFARNames reads the class-name file, one name per line.
func readCIFARNames(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var words []string
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, errors.New("class-name file is empty")
	}
	return words, nil
}

// saveCIFARImage writes one loaded image back out as a PNG, named after
// its class. Useful for eyeballing that the loader is sane.
func saveCIFARImage(t tensor.Tensor, names []string, label, index int) (string, error) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			r, _ := t.At(0, y, x)
			g, _ := t.At(1, y, x)
			b, _ := t.At(2, y, x)
			img.Set(x, y, color.RGBA{
				R: uint8(r.(float32) * 255.0),
				G: uint8(g.(float32) * 255.0),
				B: uint8(b.(float32) * 255.0),
				A: 255,
			})
		}
	}

	name := fmt.Sprintf("class_%d", label)
	if label < len(names) {
		name = names[label]
	}
	path := fmt.Sprintf("file_%s_%d.png", name, index)
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return "", err
	}
	return path, nil
}
