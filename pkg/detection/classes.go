package detection

import "strconv"

// VOCClasses contains the 21 PASCAL VOC labels MobileNet-SSD was trained on.
var VOCClasses = []string{
	"background", "aeroplane", "bicycle", "bird", "boat",
	"bottle", "bus", "car", "cat", "chair",
	"cow", "diningtable", "dog", "horse", "motorbike",
	"person", "pottedplant", "sheep", "sofa", "train",
	"tvmonitor",
}

// ClassName returns the label for id, or "class<id>" when out of range.
func ClassName(id int) string {
	if id < 0 || id >= len(VOCClasses) {
		return "class" + strconv.Itoa(id)
	}
	return VOCClasses[id]
}
