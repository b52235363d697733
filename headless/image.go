package headless

// Image is an encoded render result. The byte buffer is owned by the holder of the Image.
type Image struct {
	data []byte
}

func NewImage(data []byte) *Image {
	return &Image{data}
}

func (img *Image) Data() []byte {
	return img.data
}

func (img *Image) Size() int {
	return len(img.data)
}
