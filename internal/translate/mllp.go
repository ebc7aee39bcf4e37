package translate

import (
	"github.com/rs/zerolog"

	"github.com/ehr/hl7fhir/internal/platform/hl7v2"
)

// MLLPHandler returns an hl7v2.MessageHandler that translates each inbound
// message and acknowledges it: AA when a Bundle was produced, AE otherwise.
func (t *Translator) MLLPHandler(logger zerolog.Logger) hl7v2.MessageHandler {
	logger = logger.With().Str("component", "translate").Logger()

	return func(msg *hl7v2.Message) *hl7v2.Message {
		bundle, err := t.TranslateMessage(msg)
		if err != nil {
			logger.Error().Err(err).
				Str("control_id", msg.ControlID).
				Str("type", msg.Type).
				Msg("translation failed")
			return hl7v2.GenerateACK(msg, hl7v2.AckError, "translation failed")
		}

		logger.Info().
			Str("control_id", msg.ControlID).
			Str("type", msg.Type).
			Str("sending_app", msg.SendingApp).
			Bool("birth_date", bundle.Patient().BirthDate != "").
			Msg("message translated")

		return hl7v2.GenerateACK(msg, hl7v2.AckAccept, "")
	}
}
