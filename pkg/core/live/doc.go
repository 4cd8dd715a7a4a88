// Package live implements the realtime voice session core.
//
// A Session coordinates one upstream realtime stream: it pumps microphone
// audio up, schedules assistant audio for gapless playback, accumulates
// per-turn transcripts for both directions, answers tool calls, and surfaces
// everything through a Handler.
//
// # State machine
//
//	Idle → Connecting → Open → Closing → Idle
//	          │           │
//	          └──────── Errored
//
// The session never reconnects on its own. After Errored the caller decides
// whether to close and start a fresh session.
package live
