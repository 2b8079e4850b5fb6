// Package clipboard copies check-in summaries to the system clipboard.
package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"

	"insulink/questionnaire"
)

var ErrUnsupported = errors.New("no clipboard utility available")

func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}

func Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}

// CopyResult puts the plain-text summary of res on the clipboard and returns
// the copied text.
func CopyResult(res questionnaire.Result) (string, error) {
	text := res.Summary()
	return text, Copy(text)
}
