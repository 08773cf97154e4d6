// Package archive compresses a synthesized executable into its platform
// archive. The archive is always a .zip regardless of which archiver family
// a hosted runner would have used natively; archiver selection by operating
// system is the single piece of conditional logic in the pipeline.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Archiver produces a single .zip archive containing exactly one executable.
type Archiver interface {
	// Create writes destZip containing the file at executablePath, stored
	// under its base name. Relative paths resolve against the executable's
	// directory so behavior is consistent across operating systems.
	Create(executablePath, destZip string) error
}

// ForOS selects the archiver for an operating-system identifier. The Windows
// branch historically used a different native tool family than the others;
// both are represented here by Go's zip writer, but selection stays
// OS-conditional so the split remains explicit.
func ForOS(osID string) Archiver {
	if osID == "windows" {
		return powershellStyleArchiver{}
	}
	return infoZipStyleArchiver{}
}

type infoZipStyleArchiver struct{}

func (infoZipStyleArchiver) Create(executablePath, destZip string) error {
	return writeZip(executablePath, destZip)
}

type powershellStyleArchiver struct{}

func (powershellStyleArchiver) Create(executablePath, destZip string) error {
	return writeZip(executablePath, destZip)
}

func writeZip(executablePath, destZip string) error {
	src, err := os.Open(executablePath)
	if err != nil {
		return fmt.Errorf("open executable: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat executable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("executable path %s is a directory", executablePath)
	}

	out, err := os.Create(destZip)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("build zip header: %w", err)
	}
	header.Name = filepath.Base(executablePath)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write zip entry: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return out.Close()
}
