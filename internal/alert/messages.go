package alert

import "fmt"

const maxErrorLen = 500

func SourceFailed(source, niche string, failures int, err error) string {
	return fmt.Sprintf("**Collector failed** `%s` [%s] after %d attempts\n```%s```", source, niche, failures, clip(err))
}

func PostFailed(niche string, err error) string {
	return fmt.Sprintf("**Poster failed** [%s]\n```%s```", niche, clip(err))
}

func Started(dryRun bool) string {
	mode := "LIVE"
	if dryRun {
		mode = "DRY RUN"
	}
	return fmt.Sprintf("autopost started [%s]", mode)
}

func clip(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if r := []rune(s); len(r) > maxErrorLen {
		return string(r[:maxErrorLen])
	}
	return s
}
