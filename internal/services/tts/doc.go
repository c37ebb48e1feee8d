// Package tts implements the gateway.TTS contract.
//
// EdgeClient shells out to the edge-tts CLI (free cloud voices). HTTPClient
// posts {text, voice, speed} to a local model server and receives raw audio
// bytes. Both store the result through media/store and identify the audio
// container with media/audiofile so the stored blob carries the right
// extension for ffmpeg.
package tts
