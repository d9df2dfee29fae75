package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipverse/backend/internal/thumbnail"
)

// runCrop crops a local image into a thumbnail: crop <src> [dst]. The default
// destination sits next to the source with a _thumb.jpg suffix.
func runCrop(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected image path: crop <src> [dst]")
	}
	src := args[0]
	dst := cropDestination(src)
	if len(args) > 1 {
		dst = args[1]
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	session := thumbnail.NewSession()
	defer session.Close()

	res, err := session.Select(ctx, f)
	if err != nil {
		return fmt.Errorf("crop %s: %w", src, err)
	}
	if err := os.WriteFile(dst, res.Data, 0o644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}

	fmt.Printf("wrote %dx%d thumbnail to %s (source region %v)\n", res.Width, res.Height, dst, res.Source)
	return nil
}

func cropDestination(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + "_thumb.jpg"
}
