package session

const (
	msgHelp = "Commands:\n" +
		"/start - start an inspection\n" +
		"/finish - save all entries and close the inspection\n" +
		"/undo - remove the most recent entry\n" +
		"/status - show the current inspection\n" +
		"/reset - discard the current inspection without saving\n" +
		"/archive <unit> - show the latest saved rows for a unit\n" +
		"/help - show this message\n\n" +
		"While an inspection is active, send each defect as a text message or as a photo with a caption."

	msgInternal          = "Something went wrong while handling that message. Please try again."
	msgEmptyText         = "Empty message ignored."
	msgUnknownCommand    = "Unknown command. Send /help for the list of commands."
	msgUnknownButton     = "That button is no longer valid."
	msgAlreadyActive     = "An inspection of %s is already in progress. Finish it with /finish or discard it with /reset."
	msgPickTarget        = "Pick the unit or block to inspect, or type its label."
	msgNotSelecting      = "Start an inspection with /start before picking a unit."
	msgUnknownTarget     = "%q is not a known unit or block. Pick one from the list."
	msgAskCompany        = "Inspecting %s %s. Which company is responsible?"
	msgCompanyMatched    = "Company: %s."
	msgCompanyUnmatched  = "Company %q is not on the list, recording it as typed."
	msgUnitInstructions  = "Send defects as text or as photos with a caption."
	msgBlockInstructions = "Pick a sub-unit, then send defects as text or as photos with a caption."
	msgNoActive          = "There is no active inspection. Use /start to begin."
	msgNotBlock          = "This inspection is for a single unit and has no sub-units."
	msgUnknownSubUnit    = "%q is not a sub-unit of %s."
	msgSubUnitSelected   = "Recording defects for %s."
	msgPickSubUnitFirst  = "Pick a sub-unit first, then send the defect again."
	msgCaptionRequired   = "A photo needs a caption describing the defect. Send it again with a caption."
	msgPhotoDownload     = "Could not download the photo: %v"
	msgPhotoNotSaved     = "Photo not saved: %s"
	msgTextAdded         = "Added entry %d: %s"
	msgPhotoAdded        = "Added photo entry %d: %s"
	msgNothingToUndo     = "There is nothing to undo."
	msgAlreadyRemoved    = "That entry was already removed."
	msgRemoved           = "Removed: %s. %d entries left."
	msgOrphanedPhoto     = "Warning: the photo %s could not be deleted from storage (%s). It may need to be removed by hand."
	msgNothingToFinish   = "There is no active inspection to finish."
	msgSaved             = "Saved %d of %d entries for %s."
	msgNoEntries         = "No entries were recorded."
	msgNotSaved          = "Not saved:"
	msgReset             = "Inspection discarded."
	msgStatusIdle        = "No active inspection. Use /start to begin."
	msgStatusAwaiting    = "Inspecting %s. Waiting for the responsible company."
	msgStatusActive      = "Inspection of %s %s, company %s."
	msgStatusSubUnit     = "Current sub-unit: %s."
	msgStatusNoSubUnit   = "No sub-unit selected."
	msgStatusEmpty       = "No entries yet."
	msgArchiveOff        = "The archive is not available."
	msgArchiveUsage      = "Usage: /archive <unit>"
	msgArchiveFailed     = "Could not read the archive: %s"
	msgArchiveEmpty      = "No saved rows for %s."
	msgArchiveHeader     = "Latest saved rows for %s:"
	msgReportIncomplete  = "Could not recognise a unit and a defect in that message."
	msgReportFailed      = "Could not read that report (%s)."
	msgReportNotSaved    = "Report not saved: %s"
	msgReportSaved       = "Saved report for %s: %s (%s)."

	labelUndoEntry = "Undo this entry"
	labelUndoLast  = "Undo last"
	labelFinish    = "Finish"
	labelUndoN     = "Undo %d"
	markCurrent    = "» "
)
