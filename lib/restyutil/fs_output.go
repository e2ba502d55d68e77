package restyutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Output receives rendered HTTP exchanges keyed by a per-client message id.
type Output interface {
	Write(id string, contents string)
}

// FilesystemOutput writes every exchange into its own file under a directory, handy when the
// report markup changes and a failing fetch has to be reproduced by hand.
type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput clears `dir` and recreates it.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	name := fmt.Sprintf("%s.txt", id)
	err := os.WriteFile(filepath.Join(o.directory, name), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}
