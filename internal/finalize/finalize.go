// Package finalize stamps the metadata record and its property-files
// strings into an assembled package and produces the signed output.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/oshokin/ota-packager/internal/container"
	"github.com/oshokin/ota-packager/internal/logger"
	"github.com/oshokin/ota-packager/internal/metadata"
	"github.com/oshokin/ota-packager/internal/signer"
	"github.com/oshokin/ota-packager/internal/streaming"
)

// Package turns the staged archive into the final signed package at
// outputPath. Property-files strings are computed in two passes because
// signing may rewrite the archive layout: the first pass reserves space
// inside the metadata entry, the second fills in offsets measured on the
// signed archive. When the signed layout needs more space than was
// reserved, the pass pair is retried once from the already signed
// archive, whose layout a further signing leaves alone. The signed
// output is reopened and every string verified before returning.
func Package(ctx context.Context, md *metadata.Metadata, stagingPath, outputPath string,
	groups []*streaming.Group, sgn signer.Signer, scratchDir string) error {
	prelim, err := computePass(ctx, md, stagingPath, groups, sgn, scratchDir)
	if err != nil {
		return err
	}

	if err := finalizePass(md, prelim, groups); err != nil {
		var spaceErr *streaming.InsufficientSpaceError
		if !errors.As(err, &spaceErr) {
			return err
		}

		logger.InfoKV(ctx, "Retrying property files computation on the signed archive",
			"reserved", spaceErr.Reserved, "needed", spaceErr.Actual)

		prelim, err = computePass(ctx, md, prelim, groups, sgn, scratchDir)
		if err != nil {
			return err
		}

		if err := finalizePass(md, prelim, groups); err != nil {
			return err
		}
	}

	if err := writeMetadata(md, prelim); err != nil {
		return err
	}

	if err := sgn.Sign(ctx, prelim, outputPath); err != nil {
		return err
	}

	return verifyPass(md, outputPath, groups)
}

// computePass computes placeholder property-files strings over the
// archive, stamps the metadata entry and signs the result into a fresh
// scratch file.
func computePass(ctx context.Context, md *metadata.Metadata, archivePath string,
	groups []*streaming.Group, sgn signer.Signer, scratchDir string) (string, error) {
	r, err := container.Open(archivePath)
	if err != nil {
		return "", err
	}

	for _, group := range groups {
		value, err := group.Compute(r)
		if err != nil {
			r.Close()
			return "", err
		}

		md.Set(group.Name(), value)
	}

	if err := r.Close(); err != nil {
		return "", fmt.Errorf("close archive %s: %w", archivePath, err)
	}

	if err := writeMetadata(md, archivePath); err != nil {
		return "", err
	}

	signedPath := filepath.Join(scratchDir, uuid.NewString()+"-prelim.zip")
	if err := sgn.Sign(ctx, archivePath, signedPath); err != nil {
		return "", err
	}

	return signedPath, nil
}

// finalizePass resolves the definitive strings over the signed archive,
// each padded to the length its placeholder reserved.
func finalizePass(md *metadata.Metadata, archivePath string, groups []*streaming.Group) error {
	r, err := container.Open(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, group := range groups {
		reserved, ok := md.Get(group.Name())
		if !ok {
			return fmt.Errorf("property files %s were never computed", group.Name())
		}

		value, err := group.Finalize(r, len(reserved))
		if err != nil {
			return err
		}

		md.Set(group.Name(), value)
	}

	return nil
}

// verifyPass reopens the final package and checks every stored string
// against the layout it actually has.
func verifyPass(md *metadata.Metadata, archivePath string, groups []*streaming.Group) error {
	r, err := container.Open(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, group := range groups {
		value, ok := md.Get(group.Name())
		if !ok {
			return fmt.Errorf("property files %s were never computed", group.Name())
		}

		if err := group.Verify(r, value); err != nil {
			return err
		}
	}

	return nil
}

// writeMetadata replaces the archive's metadata entry with the current
// record, stored uncompressed so streaming clients can fetch it raw.
func writeMetadata(md *metadata.Metadata, archivePath string) error {
	if err := container.Delete(archivePath, metadata.Path); err != nil {
		return err
	}

	w, err := container.Append(archivePath)
	if err != nil {
		return err
	}

	if err := w.WriteBytes(metadata.Path, md.Marshal(), true); err != nil {
		return err
	}

	return w.Close()
}
