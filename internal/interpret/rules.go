package interpret

import (
	"regexp"
	"strings"
)

type tier int

const (
	tierExact tier = iota
	tierPhrase
	tierFallback
)

var tiers = []tier{tierExact, tierPhrase, tierFallback}

// extractor builds an Intent from a rule match. m holds the full match
// followed by the submatches. Returning false rejects the match.
type extractor func(m []string) (Intent, bool)

type rule struct {
	tier     tier
	category Category
	pattern  *regexp.Regexp
	extract  extractor
}

func fixed(in Intent) extractor {
	return func([]string) (Intent, bool) { return in, true }
}

func withArg(c Category, mode string, play bool) extractor {
	return func(m []string) (Intent, bool) {
		arg := trimArg(m[1])
		if arg == "" {
			return Intent{}, false
		}
		return Intent{Category: c, Mode: mode, Arg: arg, Play: play}, true
	}
}

func startsPlayback(s string) bool {
	for _, p := range []string{"play", "put on", "queue", "i want to hear", "i wanna hear", "give me"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// trimArg strips spaces and quotes. An argument that opens with a quote is
// cut at the last matching quote, so trailing words outside it are dropped.
func trimArg(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 1 && (s[0] == '"' || s[0] == '\'') {
		if i := strings.LastIndexByte(s, s[0]); i > 1 {
			return strings.TrimSpace(s[1:i])
		}
	}
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

const (
	quoted  = `(["']?.+?["']?)`
	anyWord = `(?:music|songs?|tracks?|stuff|tunes|vibes)`
)

var rules = []rule{
	// Exact keywords. Bare "stop" is an administrative opcode and never
	// reaches the interpreter.
	{tierExact, CategoryHelp, re(`help|commands|what can you do`), fixed(Intent{Category: CategoryHelp})},
	{tierExact, CategoryStatus, re(`status|what'?s playing|what is playing|now playing|current (?:song|track)|what'?s this( song)?|what song is this`),
		fixed(Intent{Category: CategoryStatus})},
	{tierExact, CategoryPlayback, re(`pause|stop (?:the )?music|stop playing|hold on`), fixed(Intent{Category: CategoryPlayback, Mode: ModePause})},
	{tierExact, CategoryPlayback, re(`play|resume|unpause|continue|keep playing`), fixed(Intent{Category: CategoryPlayback, Mode: ModeResume})},
	{tierExact, CategoryPlayback, re(`skip|next|skip (?:this|it)|(?:skip|next) (?:this )?(?:song|track)`), fixed(Intent{Category: CategoryPlayback, Mode: ModeSkip})},
	{tierExact, CategoryPlayback, re(`previous|prev|back|go back|(?:previous|last) (?:song|track)`), fixed(Intent{Category: CategoryPlayback, Mode: ModePrevious})},
	{tierExact, CategoryFavoriteAdd, re(`(?:i )?(?:really )?(?:like|love) (?:this|it|that)(?: one| song| track| artist| band)?`),
		fixed(Intent{Category: CategoryFavoriteAdd, Mode: ModeCurrent, Target: ThisTarget})},
	{tierExact, CategoryFavoriteList, re(`(?:(?:show|list)(?: me)? )?(?:my )?(?:favou?rites|favou?rite artists|liked artists)`),
		fixed(Intent{Category: CategoryFavoriteList})},
	{tierExact, CategoryPlaylist, re(`(?:(?:show|list)(?: me)? )?(?:my |all )?playlists`), fixed(Intent{Category: CategoryPlaylist, Mode: ModeList})},
	{tierExact, CategorySync, re(`sync|sync this|analy[sz]e this|tag this`), fixed(Intent{Category: CategorySync, Mode: ModeSync, Target: ThisTarget})},
	{tierExact, CategoryHistory, re(`history|(?:show )?(?:my )?(?:play|listening) history|recent(?:ly played| plays| tracks)?|what have i been (?:playing|listening to)`),
		fixed(Intent{Category: CategoryHistory})},
	{tierExact, CategoryMoodReport, re(`(?:my )?moods?|mood report|(?:my )?listening moods|analy[sz]e my (?:listening|history|moods?)`),
		fixed(Intent{Category: CategoryMoodReport})},
	{tierExact, CategoryLyrics, re(`lyrics|(?:show|get)(?: me)? (?:the )?lyrics`), fixed(Intent{Category: CategoryLyrics, Target: ThisTarget})},
	{tierExact, CategoryTagQuery, re(`tags|show tags|what tags (?:does this have|are on this)|tags (?:for|on) this`),
		fixed(Intent{Category: CategoryTagQuery, Mode: ModeSubject, Target: ThisTarget})},
	{tierExact, CategoryBackfill, re(`backfill|backfill tags|tag (?:my )?history`), fixed(Intent{Category: CategoryBackfill})},

	// Structured phrases, visited by category in table order.
	{tierPhrase, CategoryLyricAdd, re(`remember (?:the )?(?:lyrics?|line) `+quoted+` (?:for|from|in|by) (.+)`), func(m []string) (Intent, bool) {
		frag, target := trimArg(m[1]), trimArg(m[2])
		return Intent{Category: CategoryLyricAdd, Arg: frag, Target: target}, frag != "" && target != ""
	}},
	{tierPhrase, CategoryLyricAdd, re(`remember (?:the )?(?:lyrics?|line) `+quoted), func(m []string) (Intent, bool) {
		frag := trimArg(m[1])
		return Intent{Category: CategoryLyricAdd, Mode: ModeCurrent, Arg: frag, Target: ThisTarget}, frag != ""
	}},

	{tierPhrase, CategoryLyricSearch, reLoose(`where (?:they|he|she|it|someone|somebody) (?:says?|sings?) `+quoted+`$`), withArg(CategoryLyricSearch, "", false)},
	{tierPhrase, CategoryLyricSearch, re(`(?:(?:find|what'?s|what is) )?(?:the |a |that )?song (?:that goes|with (?:the )?lyrics?) `+quoted), withArg(CategoryLyricSearch, "", false)},
	{tierPhrase, CategoryLyricSearch, re(`(?:search )?lyrics? `+quoted), withArg(CategoryLyricSearch, "", false)},

	{tierPhrase, CategoryTagSet, re(`tag (.+?) (?:as|with) (.+)`), func(m []string) (Intent, bool) {
		target, tag := trimArg(m[1]), trimArg(m[2])
		return Intent{Category: CategoryTagSet, Arg: tag, Target: target}, target != "" && tag != ""
	}},
	{tierPhrase, CategoryTagSet, re(`(?:this|it) is (?:so |very |really )?(.+)`), func(m []string) (Intent, bool) {
		tag := trimArg(m[1])
		if _, _, ok := Classify(tag); !ok {
			return Intent{}, false
		}
		return Intent{Category: CategoryTagSet, Arg: tag, Target: ThisTarget}, true
	}},

	{tierPhrase, CategoryTagQuery, re(`(?:(?:what(?:'s| is)|show(?: me)?|list|find|play) )?(?:everything |anything |tracks |songs |artists |music |stuff )?(?:i )?tagged (?:as |with )?(.+)`),
		func(m []string) (Intent, bool) {
			tag := trimArg(m[1])
			return Intent{Category: CategoryTagQuery, Mode: ModeTag, Arg: tag, Play: strings.HasPrefix(m[0], "play")}, tag != ""
		}},
	{tierPhrase, CategoryTagQuery, re(`(?:what )?tags? (?:for|on|of) (.+)`), func(m []string) (Intent, bool) {
		target := trimArg(m[1])
		return Intent{Category: CategoryTagQuery, Mode: ModeSubject, Target: target}, target != ""
	}},
	{tierPhrase, CategoryTagQuery, re(`what tags (?:does|do) (.+?) have`), func(m []string) (Intent, bool) {
		target := trimArg(m[1])
		return Intent{Category: CategoryTagQuery, Mode: ModeSubject, Target: target}, target != ""
	}},

	{tierPhrase, CategoryPreference, re(`set (?:my )?(?:preference |pref )?([a-z0-9_.-]+) (?:to|=) (.+)`), func(m []string) (Intent, bool) {
		val := trimArg(m[2])
		return Intent{Category: CategoryPreference, Mode: ModeSet, Target: m[1], Arg: val}, val != ""
	}},
	{tierPhrase, CategoryPreference, re(`(?:get (?:my )?(?:preference |pref )?|preference )([a-z0-9_.-]+)`), func(m []string) (Intent, bool) {
		return Intent{Category: CategoryPreference, Mode: ModeGet, Target: m[1]}, true
	}},

	{tierPhrase, CategoryPlaylist, re(`(?:play|start|put on) (?:my |the )?playlist (.+)`), withArg(CategoryPlaylist, ModePlay, true)},
	{tierPhrase, CategoryPlaylist, re(`(?:play|start|put on) (?:my |the )?(.+?) playlist`), withArg(CategoryPlaylist, ModePlay, true)},
	{tierPhrase, CategoryPlaylist, re(`shuffle (?:my |the )?(?:playlist )?(.+?)(?: playlist)?`), withArg(CategoryPlaylist, ModeShuffle, true)},

	{tierPhrase, CategorySearch, re(`(?:play|put on|queue|i want to hear|i wanna hear|give me|find|search for|show me)(?: me)? (?:some|something|anything|a bit of)(?: more)? ([a-z0-9&' -]+?) `+anyWord),
		func(m []string) (Intent, bool) {
			mode, arg := searchMode(m[1])
			return Intent{Category: CategorySearch, Mode: mode, Arg: arg, Play: startsPlayback(m[0])}, arg != ""
		}},
	{tierPhrase, CategorySearch, re(`(?:play|put on|i want to hear|i wanna hear|give me) something ([a-z-]+)`), func(m []string) (Intent, bool) {
		if _, _, ok := Classify(m[1]); !ok {
			return Intent{}, false
		}
		mode, arg := searchMode(m[1])
		return Intent{Category: CategorySearch, Mode: mode, Arg: arg, Play: true}, true
	}},
	{tierPhrase, CategorySearch, re(`(?:search(?: for)?|find(?: me)?|look ?up) (.+)`), withArg(CategorySearch, ModePlain, false)},

	{tierPhrase, CategoryFavoriteAdd, re(`add (.+?) to (?:my )?favou?rites`), withArg(CategoryFavoriteAdd, "", false)},
	{tierPhrase, CategoryFavoriteAdd, re(`(?:i )?(?:really )?(?:like|love) (?:the )?(?:artist |band )?(.+)`), func(m []string) (Intent, bool) {
		arg := trimArg(m[1])
		if arg == "" || strings.HasPrefix(arg, "to ") {
			return Intent{}, false
		}
		if IsThis(arg) {
			return Intent{Category: CategoryFavoriteAdd, Mode: ModeCurrent, Target: ThisTarget}, true
		}
		return Intent{Category: CategoryFavoriteAdd, Arg: arg}, true
	}},

	{tierPhrase, CategorySync, re(`what (?:genre|kind of music|sort of music|style)(?: .*)?`), fixed(Intent{Category: CategorySync, Mode: ModeDescribe, Target: ThisTarget})},
	{tierPhrase, CategorySync, re(`describe (?:this|the current)(?: .*)?`), fixed(Intent{Category: CategorySync, Mode: ModeDescribe, Target: ThisTarget})},

	{tierPhrase, CategoryStatus, re(`what(?:'s| is) (?:playing|on)(?: now| right now)?`), fixed(Intent{Category: CategoryStatus})},
	{tierPhrase, CategoryStatus, re(`what(?:'s| is) (?:this|that|the current) (?:song|track)`), fixed(Intent{Category: CategoryStatus})},

	{tierPhrase, CategoryPlayback, re(`(?:resume|continue) (?:the )?(?:music|playback|playing)`), fixed(Intent{Category: CategoryPlayback, Mode: ModeResume})},
	{tierPhrase, CategoryPlayback, re(`pause (?:the )?(?:music|playback|this|it)`), fixed(Intent{Category: CategoryPlayback, Mode: ModePause})},
	{tierPhrase, CategoryPlayback, re(`(?:play|put on) me some (.+)`), withArg(CategoryPlayback, ModeArtist, true)},
	{tierPhrase, CategoryPlayback, re(`(?:play|put on) (?:some (?:music|songs|tracks) by|anything by|something by|music by|songs by|tracks by|some) (.+)`), withArg(CategoryPlayback, ModeArtist, true)},
	{tierPhrase, CategoryPlayback, re(`(?:play|put on|queue) (?:the song |the track )?(.+)`), withArg(CategoryPlayback, ModeTrack, true)},

	// Fallback.
	{tierFallback, CategorySearch, re(`(.+)`), withArg(CategorySearch, ModePlain, false)},
}

// re compiles a pattern anchored at both ends.
func re(p string) *regexp.Regexp {
	return regexp.MustCompile(`^(?:` + p + `)$`)
}

// reLoose compiles a pattern that may match anywhere.
func reLoose(p string) *regexp.Regexp {
	return regexp.MustCompile(p)
}
