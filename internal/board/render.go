// Package board renders session positions as PNG images.
package board

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/Cheese-session-server/internal/bot"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultSquareSize = 64
	minSquareSize     = 24
	maxSquareSize     = 128
)

var (
	lightSquare  = color.RGBA{R: 0xee, G: 0xee, B: 0xd2, A: 0xff}
	darkSquare   = color.RGBA{R: 0x76, G: 0x96, B: 0x56, A: 0xff}
	frameColor   = color.RGBA{R: 0x30, G: 0x2e, B: 0x2b, A: 0xff}
	coordColor   = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
	lastMoveFill = color.NRGBA{R: 0xf6, G: 0xf6, B: 0x69, A: 0x90}
	allFiles     = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
	allRanks     = []nchess.Rank{nchess.Rank1, nchess.Rank2, nchess.Rank3, nchess.Rank4, nchess.Rank5, nchess.Rank6, nchess.Rank7, nchess.Rank8}
)

type Options struct {
	SquareSize int
	// Flip draws the board from Black's side.
	Flip bool
}

// Render replays halfMoves and draws the resulting position with the last move highlighted.
func Render(halfMoves []string, opts Options) ([]byte, error) {
	game, err := bot.Replay(halfMoves)
	if err != nil {
		return nil, err
	}
	size := opts.SquareSize
	if size == 0 {
		size = DefaultSquareSize
	}
	if size < minSquareSize || size > maxSquareSize {
		return nil, fmt.Errorf("square size %d out of range %d-%d", size, minSquareSize, maxSquareSize)
	}

	margin := size / 3
	total := 8*size + 2*margin
	img := image.NewRGBA(image.Rect(0, 0, total, total))
	draw.Draw(img, img.Bounds(), image.NewUniform(frameColor), image.Point{}, draw.Src)
	origin := image.Pt(margin, margin)

	for _, rank := range allRanks {
		for _, file := range allFiles {
			sq := nchess.NewSquare(file, rank)
			clr := darkSquare
			if (int(file)+int(rank))%2 == 1 {
				clr = lightSquare
			}
			draw.Draw(img, squareRect(sq, size, origin, opts.Flip), image.NewUniform(clr), image.Point{}, draw.Src)
		}
	}

	if moves := game.Moves(); len(moves) > 0 {
		last := moves[len(moves)-1]
		for _, sq := range []nchess.Square{last.S1(), last.S2()} {
			draw.Draw(img, squareRect(sq, size, origin, opts.Flip), image.NewUniform(lastMoveFill), image.Point{}, draw.Over)
		}
	}

	pos := game.Position().Board()
	for sq, piece := range pos.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		pimg, err := pieceImage(piece, size)
		if err != nil {
			return nil, err
		}
		r := squareRect(sq, size, origin, opts.Flip)
		draw.Draw(img, r, pimg, image.Point{}, draw.Over)
	}

	drawCoordinates(img, size, origin, margin, opts.Flip)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func squareRect(sq nchess.Square, size int, origin image.Point, flip bool) image.Rectangle {
	col, row := int(sq.File()), 7-int(sq.Rank())
	if flip {
		col, row = 7-col, 7-row
	}
	x := origin.X + col*size
	y := origin.Y + row*size
	return image.Rect(x, y, x+size, y+size)
}

func drawCoordinates(img *image.RGBA, size int, origin image.Point, margin int, flip bool) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(coordColor), Face: face}
	ascent := face.Metrics().Ascent.Ceil()

	for _, file := range allFiles {
		r := squareRect(nchess.NewSquare(file, nchess.Rank1), size, origin, flip)
		centered(d, file.String(), (r.Min.X+r.Max.X)/2, origin.Y+8*size+(margin+ascent)/2)
	}
	for _, rank := range allRanks {
		r := squareRect(nchess.NewSquare(nchess.FileA, rank), size, origin, flip)
		centered(d, rank.String(), margin/2, (r.Min.Y+r.Max.Y+ascent)/2)
	}
}

func centered(d *font.Drawer, text string, centerX, baseline int) {
	w := d.MeasureString(text).Ceil()
	d.Dot = fixed.P(centerX-w/2, baseline)
	d.DrawString(text)
}
