package datasets

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/gomlx/gomlx/examples/downloader"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/sbinet/npyio/npz"
)

// downloadURL is the pattern for the upstream archives; the single argument
// is the image resolution (64 or 224).
const downloadURL = "https://zenodo.org/records/10519652/files/pneumoniamnist_%d.npz?download=1"

// SupportedResolutions lists the archive resolutions the loader knows how to
// fetch.
var SupportedResolutions = []int{64, 224}

// Split is one partition (train, validation or test) of the dataset at a
// fixed resolution. Images are stored as a flat normalized buffer in
// [count, res, res, channels] order; labels are one class index per example.
type Split struct {
	Images   []float32
	Labels   []int32
	Count    int
	Res      int
	Channels int
}

// ImagesTensor returns the split's images as a [count, res, res, channels]
// gomlx tensor.
func (s *Split) ImagesTensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(s.Images, s.Count, s.Res, s.Res, s.Channels)
}

// LabelsTensor returns the split's labels as a [count, 1] gomlx tensor, the
// shape the sparse cross-entropy loss expects.
func (s *Split) LabelsTensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(s.Labels, s.Count, 1)
}

// InputDim returns the flattened per-example input dimensionality.
func (s *Split) InputDim() int { return s.Res * s.Res * s.Channels }

// Splits holds the three partitions of the dataset at one resolution along
// with the task metadata.
type Splits struct {
	Info       Info
	Resolution int

	Train      Split
	Validation Split
	Test       Split
}

// TrainLabels returns the raw training label array, used for
// inverse-frequency class-weight computation.
func (s *Splits) TrainLabels() []int32 { return s.Train.Labels }

// Load fetches (when download is true and the archive is missing) and parses
// the pneumoniamnist archive at the given resolution from dir. Download and
// IO failures propagate unchanged; there are no retries.
func Load(dir string, resolution int, download bool) (*Splits, error) {
	if !slices.Contains(SupportedResolutions, resolution) {
		return nil, fmt.Errorf("unsupported resolution %d: must be one of %v", resolution, SupportedResolutions)
	}
	info := PneumoniaMNIST()

	path := filepath.Join(dir, fmt.Sprintf("%s_%d.npz", info.Task, resolution))
	if download {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
		}
		url := fmt.Sprintf(downloadURL, resolution)
		if err := downloader.DownloadIfMissing(url, path, ""); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", url, err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset archive not found at %s (re-run with download enabled): %w", path, err)
	}

	s := &Splits{Info: info, Resolution: resolution}
	rz, err := npz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open npz archive %s: %w", path, err)
	}
	defer rz.Close()

	for _, part := range []struct {
		name  string
		split *Split
	}{
		{"train", &s.Train},
		{"val", &s.Validation},
		{"test", &s.Test},
	} {
		split, err := readSplit(rz, part.name, resolution, info.Channels)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s split from %s: %w", part.name, path, err)
		}
		*part.split = split
	}
	return s, nil
}

// readSplit parses the "<name>_images" and "<name>_labels" arrays of the
// archive into a normalized Split.
func readSplit(rz *npz.Reader, name string, res, channels int) (Split, error) {
	rawImages, imgShape, err := readUint8(rz, name+"_images")
	if err != nil {
		return Split{}, err
	}
	rawLabels, labShape, err := readUint8(rz, name+"_labels")
	if err != nil {
		return Split{}, err
	}

	if len(imgShape) < 3 {
		return Split{}, fmt.Errorf("images array has rank %d, want at least 3", len(imgShape))
	}
	count := imgShape[0]
	perImage := res * res * channels
	if len(rawImages) != count*perImage {
		return Split{}, fmt.Errorf("images array has %d values, want %d (%d examples of %dx%dx%d)",
			len(rawImages), count*perImage, count, res, res, channels)
	}
	if len(labShape) == 0 || labShape[0] != count {
		return Split{}, fmt.Errorf("labels array covers %v examples, images cover %d", labShape, count)
	}

	return Split{
		Images:   normalizeIntensity(rawImages),
		Labels:   toInt32(rawLabels),
		Count:    count,
		Res:      res,
		Channels: channels,
	}, nil
}

// readUint8 reads one array of the archive as a flat uint8 buffer plus its
// shape. Archive members may or may not carry the ".npy" suffix depending on
// how the archive was written.
func readUint8(rz *npz.Reader, key string) ([]uint8, []int, error) {
	name := key
	if !slices.Contains(rz.Keys(), name) {
		name = key + ".npy"
		if !slices.Contains(rz.Keys(), name) {
			return nil, nil, fmt.Errorf("array %q not found in archive (keys: %v)", key, rz.Keys())
		}
	}
	hdr := rz.Header(name)
	var raw []uint8
	if err := rz.Read(name, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to read array %q: %w", name, err)
	}
	return raw, hdr.Descr.Shape, nil
}

// normalizeIntensity rescales raw byte pixels from [0,255] to [-1,1].
func normalizeIntensity(raw []uint8) []float32 {
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)/127.5 - 1.0
	}
	return out
}

func toInt32(raw []uint8) []int32 {
	out := make([]int32, len(raw))
	for i, v := range raw {
		out[i] = int32(v)
	}
	return out
}
