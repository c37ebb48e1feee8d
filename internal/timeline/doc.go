// Package timeline orders rendered segments into a time-aligned timeline and
// assembles the final video from it with ffmpeg.
//
// Build is pure apart from validating the background music file: it sorts
// segments by index, rejects gaps and duplicates, and computes start and end
// offsets in whole milliseconds. The Assembler then renders one captioned clip
// per entry, concatenates clips and narration in index order, mixes optional
// background music, and muxes everything into a temp file that is renamed onto
// the output path only after every step succeeded.
package timeline
