// Package vision is a minimal Google Cloud Vision OCR client.
//
// Recognize posts one image with DOCUMENT_TEXT_DETECTION and returns the
// full-text annotation. An image with no detectable text yields "" and no
// error; callers decide whether that is fatal.
package vision
