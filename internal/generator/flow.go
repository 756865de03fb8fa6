package generator

import (
	"fmt"
	"strconv"
	"strings"
)

// State identifies a step in the guided form-building conversation.
type State string

const (
	StateTopic          State = "topic"
	StateNumQuestions   State = "numQuestions"
	StateQuestionType   State = "questionType"
	StateIncludeName    State = "includeName"
	StateIncludeEmail   State = "includeEmail"
	StateIncludeContact State = "includeContact"

	// StateReady means every parameter has been collected and the
	// caller should run generation.
	StateReady State = "ready"
)

// StepResult is the outcome of advancing the conversation one turn.
// Ready is true once all parameters are collected; the caller then
// generates the form and, on failure, resets the flow with FailFlow.
type StepResult struct {
	State  State
	Params Params
	Reply  string
	Ready  bool
}

// StartFlow returns the opening state and greeting.
func StartFlow() StepResult {
	return StepResult{
		State: StateTopic,
		Reply: "What should the form be about?",
	}
}

// FailFlow resets a conversation after a failed generation attempt.
func FailFlow() StepResult {
	return StepResult{
		State: StateTopic,
		Reply: "Sorry, I couldn't generate that form. Let's start over: what should the form be about?",
	}
}

// AdvanceFlow consumes one user message and returns the next state,
// the accumulated parameters and the reply to show. Input that cannot
// be understood keeps the conversation in place and re-asks.
func AdvanceFlow(state State, params Params, input string) StepResult {
	input = strings.TrimSpace(input)

	switch state {
	case StateTopic:
		if input == "" {
			return stay(state, params, "I need a topic to build the form around. What should it be about?")
		}
		params.Topic = input
		return StepResult{
			State:  StateNumQuestions,
			Params: params,
			Reply:  fmt.Sprintf("How many questions should the form have? (1-%d)", maxNumQuestions),
		}

	case StateNumQuestions:
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > maxNumQuestions {
			return stay(state, params, fmt.Sprintf("Please give me a number between 1 and %d.", maxNumQuestions))
		}
		params.NumQuestions = n
		return StepResult{
			State:  StateQuestionType,
			Params: params,
			Reply:  "Should the questions be multiple choice or short answer?",
		}

	case StateQuestionType:
		kind, ok := parseQuestionType(input)
		if !ok {
			return stay(state, params, `Please answer "multiple choice" or "short answer".`)
		}
		params.QuestionType = kind
		return StepResult{
			State:  StateIncludeName,
			Params: params,
			Reply:  "Should the form ask respondents for their name? (yes/no)",
		}

	case StateIncludeName:
		yes, ok := parseYesNo(input)
		if !ok {
			return stay(state, params, "Please answer yes or no: should the form ask for the respondent's name?")
		}
		params.IncludeName = yes
		return StepResult{
			State:  StateIncludeEmail,
			Params: params,
			Reply:  "Should the form ask for their email address? (yes/no)",
		}

	case StateIncludeEmail:
		yes, ok := parseYesNo(input)
		if !ok {
			return stay(state, params, "Please answer yes or no: should the form ask for an email address?")
		}
		params.IncludeEmail = yes
		return StepResult{
			State:  StateIncludeContact,
			Params: params,
			Reply:  "And should it ask for a contact number? (yes/no)",
		}

	case StateIncludeContact:
		yes, ok := parseYesNo(input)
		if !ok {
			return stay(state, params, "Please answer yes or no: should the form ask for a contact number?")
		}
		params.IncludeContact = yes
		return StepResult{
			State:  StateReady,
			Params: params,
			Reply:  "Got it, generating your form now...",
			Ready:  true,
		}

	default:
		// Unknown or terminal state: start over.
		return StartFlow()
	}
}

func stay(state State, params Params, reply string) StepResult {
	return StepResult{State: state, Params: params, Reply: reply}
}

func parseQuestionType(input string) (string, bool) {
	s := strings.ToLower(input)
	switch {
	case strings.Contains(s, "multiple") || strings.Contains(s, "mcq") || strings.Contains(s, "choice"):
		return KindMCQ, true
	case strings.Contains(s, "short"):
		return KindShortAnswer, true
	}
	return "", false
}

func parseYesNo(input string) (bool, bool) {
	switch strings.ToLower(input) {
	case "yes", "y", "yeah", "yep", "sure":
		return true, true
	case "no", "n", "nope":
		return false, true
	}
	return false, false
}
