package media

// DropReason explains why Select left an attachment out.
type DropReason string

const (
	DropNotReady        DropReason = "not_ready"
	DropVideoPriority   DropReason = "video_priority"
	DropOverImageLimit  DropReason = "over_image_limit"
	DropUnsupportedKind DropReason = "unsupported_kind"
)

// Dropped records an attachment Select did not choose.
type Dropped struct {
	Attachment Attachment
	Reason     DropReason
}

// Selection is the embed strategy chosen for a post.
type Selection struct {
	// Kind is KindVideo for a single video, KindImage for up to ImageLimit
	// images and KindOther when nothing can be embedded.
	Kind    Kind
	Chosen  []Attachment
	Dropped []Dropped
}

// Empty reports whether nothing was selected.
func (s Selection) Empty() bool { return len(s.Chosen) == 0 }

// DroppedKinds lists the distinct kinds of dropped attachments in first-seen
// order.
func (s Selection) DroppedKinds() []string {
	var kinds []string
	seen := make(map[Kind]bool)
	for _, d := range s.Dropped {
		if !seen[d.Attachment.Kind] {
			seen[d.Attachment.Kind] = true
			kinds = append(kinds, d.Attachment.Kind.String())
		}
	}
	return kinds
}

// Select picks the attachments to embed. Attachments still processing are
// skipped first. A video then wins over everything else; otherwise the first
// ImageLimit images are chosen in their original order.
func Select(attachments []Attachment, policy Policy) Selection {
	var (
		sel   Selection
		ready []Attachment
	)
	for _, a := range attachments {
		if !a.Ready {
			sel.Dropped = append(sel.Dropped, Dropped{Attachment: a, Reason: DropNotReady})
			continue
		}
		ready = append(ready, a)
	}

	videoAt := -1
	for i, a := range ready {
		if a.Kind == KindVideo {
			videoAt = i
			break
		}
	}

	if videoAt >= 0 {
		sel.Kind = KindVideo
		for i, a := range ready {
			if i == videoAt {
				sel.Chosen = append(sel.Chosen, a)
				continue
			}
			sel.Dropped = append(sel.Dropped, Dropped{Attachment: a, Reason: DropVideoPriority})
		}
		return sel
	}

	for _, a := range ready {
		switch {
		case a.Kind != KindImage:
			sel.Dropped = append(sel.Dropped, Dropped{Attachment: a, Reason: DropUnsupportedKind})
		case len(sel.Chosen) >= policy.ImageLimit:
			sel.Dropped = append(sel.Dropped, Dropped{Attachment: a, Reason: DropOverImageLimit})
		default:
			sel.Chosen = append(sel.Chosen, a)
		}
	}
	if len(sel.Chosen) > 0 {
		sel.Kind = KindImage
	}
	return sel
}
