// Package ui is the terminal front end: a cooperative rendering loop that
// draws parameter widgets and capture visualizations, and turns key presses
// into parameter announcements through a params.Mirror.
//
// The loop never touches the audio thread's state directly. It reads
// captures only through capture.Publisher.Read and writes parameters only
// through the Mirror.
package ui
