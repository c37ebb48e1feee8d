// Command reelforge turns a topic, a finished script, or a long text into a
// narrated short video.
//
// Runs execute in-process: "reelforge generate" plans the narration, renders
// every segment concurrently, and assembles the final video while printing
// progress. Run history lives in a sqlite archive so failed or interrupted
// runs can be inspected with "reelforge runs" and resumed without
// re-rendering the segments that already succeeded.
package main
