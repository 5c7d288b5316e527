package media

import "sync"

// StagedFile is an upload sitting in the local staging directory. It is
// removed at most once no matter how many code paths ask for it.
type StagedFile struct {
	Path         string
	OriginalName string

	once sync.Once
	err  error
}

func NewStagedFile(path, originalName string) *StagedFile {
	return &StagedFile{Path: path, OriginalName: originalName}
}

func (f *StagedFile) cleanup(remove func(string) error) error {
	f.once.Do(func() {
		f.err = remove(f.Path)
	})
	return f.err
}
