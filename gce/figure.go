package gce

import (
	"fmt"
	"image"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Extension ShowAllImages looks for.
const FigureExt = ".png"

type Figure struct {
	Dir string
	Name string
	Ext string
	Width int
	Height int
	Size int64
	ModTime time.Time
}

func (f Figure) Path() string {
	return filepath.Join(f.Dir, f.Name)
}

// A Renderer displays decoded images, e.g. by logging them or by composing them into a sheet.
type Renderer interface {
	Render(path string, im image.Image) error
}

// Lists regular files in dir whose name ends with ext, in directory-listing order.
func listByExt(dir string, ext string) ([]os.FileInfo, error) {
	files, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var matched []os.FileInfo
	for _, fi := range files {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ext) {
			continue
		}
		matched = append(matched, fi)
	}
	return matched, nil
}

// ListFigures returns the figures in dir with the given extension (e.g. ".png").
// Dimensions are left at zero for files that cannot be sniffed.
func ListFigures(dir string, ext string) ([]Figure, error) {
	files, err := listByExt(dir, ext)
	if err != nil {
		return nil, err
	}
	figures := []Figure{}
	for _, fi := range files {
		fig := Figure{
			Dir: dir,
			Name: fi.Name(),
			Ext: Ext(fi.Name()),
			Size: fi.Size(),
			ModTime: fi.ModTime(),
		}
		if dims, err := GetImageDimsFromFile(fig.Path()); err == nil {
			fig.Width, fig.Height = dims[0], dims[1]
		}
		figures = append(figures, fig)
	}
	return figures, nil
}

func DecodeImageFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	im, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v", path, err)
	}
	return im, nil
}

// ShowImage reads one image file and renders it.
func ShowImage(r Renderer, path string) error {
	im, err := DecodeImageFile(path)
	if err != nil {
		return err
	}
	return r.Render(path, im)
}

// ShowAllImages renders every .png file in dir, in listing order.
// It fails if dir does not exist and renders nothing if no file matches.
func ShowAllImages(r Renderer, dir string) error {
	files, err := listByExt(dir, FigureExt)
	if err != nil {
		return err
	}
	for _, fi := range files {
		if err := ShowImage(r, filepath.Join(dir, fi.Name())); err != nil {
			return err
		}
	}
	return nil
}

// LogRenderer writes one line per image.
type LogRenderer struct {
	W io.Writer
}

func (r LogRenderer) Render(path string, im image.Image) error {
	bounds := im.Bounds()
	_, err := fmt.Fprintf(r.W, "%s\t%dx%d\n", path, bounds.Dx(), bounds.Dy())
	return err
}

// Renderer that remembers what it was asked to show.
type CollectRenderer struct {
	Paths []string
}

func (r *CollectRenderer) Render(path string, im image.Image) error {
	r.Paths = append(r.Paths, path)
	return nil
}

// MultiRenderer renders every image with each of its renderers in turn.
type MultiRenderer []Renderer

func (m MultiRenderer) Render(path string, im image.Image) error {
	for _, r := range m {
		if err := r.Render(path, im); err != nil {
			return err
		}
	}
	return nil
}
