// Package logging writes structured JSON logs for chatrepair to a
// size-rotated file under ~/.chatrepair/logs/ and reads them back for
// 'chatrepair logs'.
//
// The terminal belongs to the report and prompts, so logs go to the file
// only. With --debug they are mirrored to stderr at debug level.
package logging
