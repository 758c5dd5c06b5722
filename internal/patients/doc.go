// Package patients turns census screenshots into patient records.
//
// Extractor runs every screenshot through OCR, joins the text segments
// under SOURCE/HOSPITAL headers, asks the LLM for a JSON array of
// {name, location, reason, admittedDate}, then cleans the answer: blank names
// are dropped, the requesting doctor's own name is rejected in either
// "LAST, FIRST" or "FIRST LAST" order, and duplicates are removed. Name
// comparison folds case and diacritics.
package patients
