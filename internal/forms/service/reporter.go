package service

import (
	"strings"

	"fishtank/internal/forms/models"
)

const (
	MessageSpamBlocked   = "Submission blocked."
	MessageConfigMissing = "Something went wrong on our side. Please try again later."
	MessageBusy          = "Your submission is already being processed."
	relayErrorPrefix     = "Error: "
)

// Report maps an outcome onto the indicator and message shown to the user.
// The spam reason never reaches the message.
func Report(def *models.FormDefinition, o models.Outcome) models.Report {
	switch o.Kind {
	case models.OutcomeSuccess:
		msg := strings.ReplaceAll(def.Messages.Success, "{role}", o.Role.Label())
		return models.Report{State: models.StateSuccess, Message: msg}
	case models.OutcomeSpamRejected:
		return models.Report{State: models.StateError, Message: MessageSpamBlocked}
	case models.OutcomeValidationFailed:
		return models.Report{State: models.StateError, Message: MissingMessage(o.MissingLabels)}
	case models.OutcomeConfigMissing:
		return models.Report{State: models.StateError, Message: MessageConfigMissing}
	case models.OutcomeRelayRejected:
		return models.Report{State: models.StateError, Message: relayErrorPrefix + o.RelayError}
	case models.OutcomeBusy:
		return models.Report{State: models.StateSubmitting, Message: MessageBusy}
	}
	return models.Report{State: models.StateError, Message: transportMessage(def)}
}

func transportMessage(def *models.FormDefinition) string {
	noun := def.Messages.Noun
	if noun == "" {
		noun = "submission"
	}
	return "There was an error submitting your " + noun + ". Please try again later."
}
