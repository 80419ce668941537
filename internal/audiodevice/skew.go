package audiodevice

// SkewAction decides how the playback loop should adjust its read cursor
// to compensate for clock skew between the remote sender's capture clock
// and the local device clock. delta is the inbound frame's timestamp
// minus the local microphone's most recent capture timestamp; delta0 is
// the delta observed for the first frame of the call, used as the
// reference point. Returns the number of extra ring slots to skip beyond
// the usual one, and whether the current frame should be held (written
// again next tick) instead of advancing.
func SkewAction(delta, delta0 int64) (dropExtraFrames int, duplicate bool) {
	diff := delta - delta0
	maxDriftMS := int64((LLBS / 2) * FrameIntervalMS)

	switch {
	case diff > int64(LLBS*FrameIntervalMS):
		return 2, false
	case diff > maxDriftMS:
		return 1, false
	case diff < -int64(FrameIntervalMS):
		return 0, true
	default:
		return 0, false
	}
}
