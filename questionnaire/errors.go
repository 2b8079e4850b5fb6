package questionnaire

import "errors"

var (
	// ErrQuestionBankUnavailable is returned when the question bank could not be fetched.
	ErrQuestionBankUnavailable = errors.New("question bank unavailable")
	// ErrEmptyBank is returned when a loaded bank contains no prompts.
	ErrEmptyBank = errors.New("question bank is empty")
	// ErrUnknownCategory is returned when a bank or answer set names a category outside med/food/sleep.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrNotReady is returned when the sequencer is asked to present or record before a bank is loaded.
	ErrNotReady = errors.New("questionnaire not loaded")
	// ErrAlreadyLoaded is returned by Load outside the Loading state.
	ErrAlreadyLoaded = errors.New("questionnaire already loaded")
	// ErrNoPrompt is returned when an answer is recorded before the current prompt was presented.
	ErrNoPrompt = errors.New("no prompt presented")
	// ErrComplete is returned when recording an answer after the last prompt.
	ErrComplete = errors.New("questionnaire already complete")
	// ErrScoringFailed wraps any failure of the scoring collaborator.
	ErrScoringFailed = errors.New("scoring failed")
	// ErrAlreadySubmitted is returned on a second submission for the same session.
	ErrAlreadySubmitted = errors.New("answers already submitted")
	// ErrAnswerCountMismatch is returned when the answer total does not match the queue length.
	ErrAnswerCountMismatch = errors.New("answer count does not match prompt count")
)
