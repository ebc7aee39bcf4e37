package hl7v2

import (
	"strings"
	"time"
)

// Acknowledgment codes written to MSA-1.
const (
	AckAccept = "AA"
	AckError  = "AE"
	AckReject = "AR"
)

// GenerateACK builds the acknowledgment for incoming.
//
// The ACK is written with the incoming message's encoding characters, swaps
// the sending and receiving application/facility and references the original
// control ID in MSA-2. A non-empty text is carried in MSA-3.
func GenerateACK(incoming *Message, ackCode, text string) *Message {
	enc := incoming.Encoding

	// incoming.Type is something like "ADT^A01"; the ACK keeps the trigger.
	ackType := "ACK"
	if parts := strings.SplitN(incoming.Type, string(enc.Component), 3); len(parts) >= 2 && parts[1] != "" {
		ackType += string(enc.Component) + parts[1]
	}

	now := time.Now().UTC()
	controlID := "ACK" + now.Format("20060102150405.000")

	msh := Segment{
		Name: headerSegment,
		Fields: []Field{
			{Value: string(enc.Field)},            // MSH-1
			{Value: enc.String()[1:]},             // MSH-2
			{Value: incoming.ReceivingApp},        // MSH-3
			{Value: incoming.ReceivingFac},        // MSH-4
			{Value: incoming.SendingApp},          // MSH-5
			{Value: incoming.SendingFac},          // MSH-6
			{Value: now.Format("20060102150405")}, // MSH-7
			{},                                    // MSH-8
			{Value: ackType},                      // MSH-9
			{Value: controlID},                    // MSH-10
			{Value: "P"},                          // MSH-11
			{Value: incoming.Version},             // MSH-12
		},
	}

	msa := Segment{
		Name: "MSA",
		Fields: []Field{
			{Value: ackCode},
			{Value: incoming.ControlID},
		},
	}
	if text != "" {
		msa.Fields = append(msa.Fields, Field{Value: escapeText(text, enc)})
	}

	return &Message{
		Encoding:     enc,
		Segments:     []Segment{msh, msa},
		Type:         ackType,
		ControlID:    controlID,
		Version:      incoming.Version,
		Timestamp:    now,
		SendingApp:   incoming.ReceivingApp,
		SendingFac:   incoming.ReceivingFac,
		ReceivingApp: incoming.SendingApp,
		ReceivingFac: incoming.SendingFac,
	}
}

// escapeText writes free text so that it cannot be mistaken for delimiters.
func escapeText(s string, enc EncodingCharacters) string {
	esc := func(c byte) string { return string([]byte{enc.Escape, c, enc.Escape}) }
	r := strings.NewReplacer(
		string(enc.Escape), esc('E'),
		string(enc.Field), esc('F'),
		string(enc.Component), esc('S'),
		string(enc.Subcomponent), esc('T'),
		string(enc.Repetition), esc('R'),
		"\r", " ", "\n", " ",
	)
	return r.Replace(s)
}
