package helpers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Move moves a file from a source path to a destination path, replacing the
// destination if it exists. Copy-then-remove is used instead of [os.Rename]
// so it works across devices (Docker volumes).
func Move(sourcePath, destPath string) error {
	sourceAbs, err := filepath.Abs(sourcePath)
	if err != nil {
		return err
	}

	destAbs, err := filepath.Abs(destPath)
	if err != nil {
		return err
	}

	if sourceAbs == destAbs {
		return fmt.Errorf("source and destination are the same file: %s", sourceAbs)
	}

	inputFile, err := os.Open(sourcePath)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		inputFile.Close()
		return err
	}

	outputFile, err := os.Create(destPath)
	if err != nil {
		inputFile.Close()
		return err
	}

	_, err = io.Copy(outputFile, inputFile)
	inputFile.Close()
	closeErr := outputFile.Close()
	if err == nil {
		err = closeErr
	}

	if err != nil {
		if errRem := os.Remove(destPath); errRem != nil {
			return fmt.Errorf(
				"unable to os.Remove error: %s after io.Copy error: %s",
				errRem,
				err,
			)
		}

		return err
	}

	return os.Remove(sourcePath)
}

// ReplaceFile writes data to a temporary file next to destPath and moves it
// into place, so a failed write never leaves a truncated file at destPath.
func ReplaceFile(destPath string, data []byte) error {
	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(destDir, ".report-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}

	if err = Move(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}
