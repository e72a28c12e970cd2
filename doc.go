// # Telephony Bridge for the OpenAI Realtime Voice API
//
// This repository relays phone-call audio between a Twilio Media Stream and the OpenAI Realtime API so a caller can hold a natural spoken conversation with an AI assistant. The core is a per-call duplex relay: two pumps move audio frames between the differently-addressed streaming protocols, track playback progress through mark checkpoints, and on barge-in truncate the assistant's in-flight utterance so the model's transcript matches what the caller actually heard.
package relay
