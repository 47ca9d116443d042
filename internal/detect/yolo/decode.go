package yolo

import (
	"image"
	"slices"
)

type candidate struct {
	box   image.Rectangle
	score float32
	class int
}

type scaleFactors struct {
	x, y   float32
	origin image.Point
	bounds image.Rectangle
}

// decodeRows reads a YOLOv5 output tensor laid out as rows of
// [cx, cy, w, h, objectness, class scores...] in network input pixels.
// score = objectness * best class score.
func decodeRows(data []float32, rows, cols int, minScore float32, s scaleFactors) []candidate {
	if cols < 6 || len(data) < rows*cols {
		return nil
	}

	var out []candidate
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		obj := row[4]
		if obj < minScore {
			continue
		}

		best, class := float32(0), -1
		for c, v := range row[5:] {
			if v > best {
				best, class = v, c
			}
		}
		score := obj * best
		if class < 0 || score < minScore {
			continue
		}

		cx, cy, w, h := row[0]*s.x, row[1]*s.y, row[2]*s.x, row[3]*s.y
		box := image.Rect(
			int(cx-w/2), int(cy-h/2),
			int(cx+w/2), int(cy+h/2),
		).Add(s.origin).Intersect(s.bounds)
		if box.Empty() {
			continue
		}

		out = append(out, candidate{box: box, score: score, class: class})
	}
	return out
}

// suppressPerClass runs nms separately for each class, so overlapping boxes
// of different classes never suppress each other. It returns indexes into
// cands ordered by descending score.
func suppressPerClass(cands []candidate, nms func([]image.Rectangle, []float32) []int) []int {
	groups := make(map[int][]int)
	for i, c := range cands {
		groups[c.class] = append(groups[c.class], i)
	}

	var keep []int
	for _, idxs := range groups {
		boxes := make([]image.Rectangle, len(idxs))
		scores := make([]float32, len(idxs))
		for j, i := range idxs {
			boxes[j] = cands[i].box
			scores[j] = cands[i].score
		}
		for _, k := range nms(boxes, scores) {
			if k >= 0 && k < len(idxs) {
				keep = append(keep, idxs[k])
			}
		}
	}

	slices.SortStableFunc(keep, func(a, b int) int {
		switch {
		case cands[a].score > cands[b].score:
			return -1
		case cands[a].score < cands[b].score:
			return 1
		}
		return a - b
	})
	return keep
}
