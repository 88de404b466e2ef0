package calls

import (
	"fmt"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/callstate"
)

// greetings is the pool the opening agent line is drawn from. %s is the
// agent's name.
var greetings = []string{
	"Guten Tag, hier ist %s von ZOE Solar. Wie kann ich Ihnen helfen?",
	"Hallo, Sie sprechen mit %s, der digitalen Assistenz von ZOE Solar. Was kann ich für Sie tun?",
	"Willkommen bei ZOE Solar, mein Name ist %s. Worum geht es bei Ihnen?",
}

// script is the canned conversation fed after the greeting, alternating
// caller and agent turns.
var script = []callstate.TranscriptLine{
	{Speaker: callstate.SpeakerCaller, Text: "Hallo, ich interessiere mich für eine Photovoltaikanlage für mein Einfamilienhaus."},
	{Speaker: callstate.SpeakerAgent, Text: "Sehr gerne. Wissen Sie ungefähr, wie groß Ihre Dachfläche ist und wie sie ausgerichtet ist?"},
	{Speaker: callstate.SpeakerCaller, Text: "Etwa 60 Quadratmeter, nach Süden ausgerichtet."},
	{Speaker: callstate.SpeakerAgent, Text: "Das sind sehr gute Voraussetzungen. Haben Sie auch Interesse an einem Batteriespeicher?"},
	{Speaker: callstate.SpeakerCaller, Text: "Ja, das wäre interessant. Was würde das ungefähr kosten?"},
	{Speaker: callstate.SpeakerAgent, Text: "Das hängt von der Anlagengröße ab. Ich schlage einen kostenlosen Vor-Ort-Termin vor, passt Ihnen nächste Woche?"},
	{Speaker: callstate.SpeakerCaller, Text: "Dienstagvormittag würde mir gut passen."},
	{Speaker: callstate.SpeakerAgent, Text: "Ich habe Dienstag um 10 Uhr für Sie vorgemerkt. Sie erhalten eine Bestätigung per SMS."},
}

// MaxTranscriptLines is the number of synthetic lines one call can
// accumulate: the greeting plus the whole script.
func MaxTranscriptLines() int {
	return len(script) + 1
}

func greetingFor(i int, agentName string) callstate.TranscriptLine {
	return callstate.TranscriptLine{
		Speaker: callstate.SpeakerAgent,
		Text:    fmt.Sprintf(greetings[i], agentName),
	}
}
